package offer

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vpnbot/bot/backend"
	"github.com/m3rciful/vpnbot/bot/menu"
	"github.com/m3rciful/vpnbot/bot/session"
	"github.com/m3rciful/vpnbot/core/clock"
)

type fakeBackend struct {
	plans      []backend.Plan
	plansErr   error
	prior      *backend.PaidOffer
	create     func(backend.OfferForm) (*backend.OfferResult, error)
	status     *backend.OfferStatus
	statusErr  error
	rejectErr  error
	forms      []backend.OfferForm
	rejected   []string
	priorCalls int
}

func (f *fakeBackend) Plans(context.Context, int64) ([]backend.Plan, error) {
	if f.plansErr != nil {
		return nil, f.plansErr
	}
	return f.plans, nil
}

func (f *fakeBackend) PriorPaidOffer(context.Context, int64) (*backend.PaidOffer, error) {
	f.priorCalls++
	return f.prior, nil
}

func (f *fakeBackend) CreateOffer(_ context.Context, form backend.OfferForm) (*backend.OfferResult, error) {
	f.forms = append(f.forms, form)
	if f.create == nil {
		return &backend.OfferResult{Connection: "vless://conn"}, nil
	}
	return f.create(form)
}

func (f *fakeBackend) RejectOffer(_ context.Context, id string) error {
	f.rejected = append(f.rejected, id)
	return f.rejectErr
}

func (f *fakeBackend) OfferStatus(context.Context, int64) (*backend.OfferStatus, error) {
	return f.status, f.statusErr
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	be    *fakeBackend
	clock *clock.MockClock
	store *session.Store
	wf    *Workflow
	sess  *session.Session
}

func newFixture(t *testing.T, be *fakeBackend) *fixture {
	t.Helper()
	mc := clock.NewMockClock(epoch)
	st := session.NewStore(mc)
	unlock := st.Lock(100)
	t.Cleanup(unlock)
	s, err := st.Create(100, session.Init{Handle: "alice"})
	require.NoError(t, err)
	wf := New(be, st, Config{
		MaxPromoLength:    10,
		NewOfferCooldown:  18 * time.Hour,
		OfferInfoCooldown: 5 * time.Minute,
	})
	return &fixture{be: be, clock: mc, store: st, wf: wf, sess: s}
}

func pricedOffer(backend.OfferForm) (*backend.OfferResult, error) {
	return &backend.OfferResult{
		OfferID: "42", PlanName: "Month", Price: 300, Discount: 25, PromoName: "SAVE", ToPay: 225,
	}, nil
}

var catalog = []backend.Plan{
	{ID: "cheap", Title: "Cheap", Price: 100, WithPromo: true},
	{ID: "free", Title: "Trial", Price: 0},
	{ID: "month", Title: "Month", Price: 300, WithPromo: true},
	{ID: "month2", Title: "Month bis", Price: 300},
}

func TestStartSortsByPriceDescendingStable(t *testing.T) {
	f := newFixture(t, &fakeBackend{plans: catalog})

	out, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Equal(t, KindCatalog, out.Kind)

	var ids []string
	for _, p := range out.Plans {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]string{"month", "month2", "cheap", "free"}, ids); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, out.Plans, f.sess.Catalog)
	assert.Equal(t, menu.Catalog(out.Plans), f.sess.Replies)
	assert.Equal(t, "cheap", catalog[0].ID, "input slice is not reordered")
}

func TestUnknownPlanNeverSubmits(t *testing.T) {
	f := newFixture(t, &fakeBackend{plans: catalog})
	_, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)

	_, err = f.wf.SelectPlan(context.Background(), f.sess, "ghost")
	assert.True(t, errors.Is(err, ErrUnknownPlan))
	assert.Empty(t, f.be.forms)
	assert.Zero(t, f.be.priorCalls)
	assert.Equal(t, session.Browsing, f.sess.Stage())
}

func TestSelectPlanWithoutCatalogIsUnknown(t *testing.T) {
	f := newFixture(t, &fakeBackend{plans: catalog})
	_, err := f.wf.SelectPlan(context.Background(), f.sess, "month")
	assert.True(t, errors.Is(err, ErrUnknownPlan))
}

func TestFailedRefreshDropsOldCatalog(t *testing.T) {
	f := newFixture(t, &fakeBackend{plans: catalog})
	_, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)
	require.NotEmpty(t, f.sess.Catalog)

	f.be.plansErr = errors.New("backend down")
	_, err = f.wf.Start(context.Background(), f.sess)
	require.Error(t, err)
	assert.Empty(t, f.sess.Catalog)

	_, err = f.wf.SelectPlan(context.Background(), f.sess, "month")
	assert.True(t, errors.Is(err, ErrUnknownPlan))
	assert.Empty(t, f.be.forms)
}

func TestSelectPromoPlanPrompts(t *testing.T) {
	f := newFixture(t, &fakeBackend{plans: catalog})
	_, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)

	out, err := f.wf.SelectPlan(context.Background(), f.sess, "month")
	require.NoError(t, err)
	assert.Equal(t, KindPromoPrompt, out.Kind)
	assert.Equal(t, session.ActionAwaitingPromoCode, f.sess.PendingAction())
	assert.Equal(t, "month", f.sess.Form().PlanID)
	assert.Equal(t, int64(100), f.sess.Form().OwnerID)
	assert.Equal(t, menu.SkipPromo(), f.sess.Replies)
}

func TestSelectSkipsPromo(t *testing.T) {
	cases := []struct {
		name  string
		plan  string
		prior *backend.PaidOffer
		want  PromoSkip
	}{
		{name: "plan without promo", plan: "month2", want: PromoUnsupported},
		{name: "paid before", plan: "month", prior: &backend.PaidOffer{OfferID: "7"}, want: PromoPaidBefore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, &fakeBackend{plans: catalog, prior: tc.prior, create: pricedOffer})
			_, err := f.wf.Start(context.Background(), f.sess)
			require.NoError(t, err)

			out, err := f.wf.SelectPlan(context.Background(), f.sess, tc.plan)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.Skip)
			assert.Equal(t, KindPaymentRequired, out.Kind)
			require.Len(t, f.be.forms, 1)
			assert.Equal(t, backend.OfferForm{PlanID: tc.plan, UserID: 100}, f.be.forms[0])
		})
	}
}

func TestPromoTooLongKeepsState(t *testing.T) {
	f := newFixture(t, &fakeBackend{plans: catalog})
	_, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)
	_, err = f.wf.SelectPlan(context.Background(), f.sess, "month")
	require.NoError(t, err)

	out, err := f.wf.PromoInput(context.Background(), f.sess, "ABCDEFGHIJK")
	require.NoError(t, err)
	assert.Equal(t, KindPromoTooLong, out.Kind)
	assert.Equal(t, session.ActionAwaitingPromoCode, f.sess.PendingAction())
	assert.Empty(t, f.be.forms)

	// Ten Cyrillic characters are within the limit even though they take 20 bytes.
	f.be.create = pricedOffer
	out, err = f.wf.PromoInput(context.Background(), f.sess, "ПРОМОКОД10")
	require.NoError(t, err)
	assert.Equal(t, KindPaymentRequired, out.Kind)
	assert.Equal(t, "ПРОМОКОД10", f.be.forms[0].PromoCode)
}

func TestPaymentRequiredSnapshot(t *testing.T) {
	f := newFixture(t, &fakeBackend{plans: catalog, create: pricedOffer})
	_, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)
	_, err = f.wf.SelectPlan(context.Background(), f.sess, "month")
	require.NoError(t, err)

	out, err := f.wf.PromoInput(context.Background(), f.sess, "SAVE")
	require.NoError(t, err)
	want := &session.PendingOffer{OfferID: "42", PlanName: "Month", Price: 300, Discount: 25, PromoName: "SAVE", ToPay: 225}
	if diff := cmp.Diff(want, out.Offer); diff != "" {
		t.Fatalf("offer mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, session.AwaitingPayment, f.sess.Stage())
	assert.True(t, f.sess.CanSettle())
	assert.Equal(t, menu.Payment(), f.sess.Replies)

	again, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Equal(t, KindPaymentPending, again.Kind)
	assert.True(t, f.sess.CanSettle())
}

func TestConfirmArmsNewOfferCooldown(t *testing.T) {
	f := newFixture(t, &fakeBackend{plans: catalog, create: pricedOffer})
	_, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)
	_, err = f.wf.SelectPlan(context.Background(), f.sess, "month2")
	require.NoError(t, err)

	out, err := f.wf.Confirm(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Equal(t, KindConfirmed, out.Kind)
	assert.Equal(t, "42", out.Offer.OfferID)
	assert.Nil(t, f.sess.Pending())
	assert.Equal(t, session.Browsing, f.sess.Stage())
	assert.Equal(t, 64_800_000*time.Millisecond, f.sess.Gate.Remaining(session.GateNewOffer))
	assert.Empty(t, f.be.rejected, "confirm makes no backend call")

	_, err = f.wf.Confirm(context.Background(), f.sess)
	assert.True(t, errors.Is(err, ErrNoPendingAction))
}

func TestCancelRejectsOffer(t *testing.T) {
	f := newFixture(t, &fakeBackend{plans: catalog, create: pricedOffer})
	_, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)
	_, err = f.wf.SelectPlan(context.Background(), f.sess, "month2")
	require.NoError(t, err)

	out, err := f.wf.Cancel(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Equal(t, KindCancelled, out.Kind)
	assert.Equal(t, []string{"42"}, f.be.rejected)
	assert.Nil(t, f.sess.Pending())
	assert.True(t, f.sess.Gate.Allowed(session.GateNewOffer))
}

func TestCancelFailureStillResets(t *testing.T) {
	f := newFixture(t, &fakeBackend{plans: catalog, create: pricedOffer, rejectErr: errors.New("down")})
	_, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)
	_, err = f.wf.SelectPlan(context.Background(), f.sess, "month2")
	require.NoError(t, err)

	_, err = f.wf.Cancel(context.Background(), f.sess)
	require.Error(t, err)
	assert.Nil(t, f.sess.Pending())
	assert.Equal(t, session.Browsing, f.sess.Stage())
}

func TestActivationFetchesStatusAndArmsOfferInfo(t *testing.T) {
	status := &backend.OfferStatus{Connection: "vless://conn", PlanName: "Month"}
	f := newFixture(t, &fakeBackend{plans: catalog, status: status})
	_, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)

	out, err := f.wf.SelectPlan(context.Background(), f.sess, "month2")
	require.NoError(t, err)
	assert.Equal(t, KindActivated, out.Kind)
	assert.Equal(t, "vless://conn", out.Connection)
	assert.Same(t, status, out.Status)
	assert.False(t, f.sess.Gate.Allowed(session.GateOfferInfo))
	assert.Equal(t, session.Browsing, f.sess.Stage())
}

func TestActivationDegradesWithoutStatus(t *testing.T) {
	f := newFixture(t, &fakeBackend{plans: catalog, statusErr: errors.New("timeout")})
	_, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)

	out, err := f.wf.SelectPlan(context.Background(), f.sess, "month2")
	require.NoError(t, err)
	assert.Equal(t, KindActivated, out.Kind)
	assert.Nil(t, out.Status)
}

func TestActivateTrial(t *testing.T) {
	f := newFixture(t, &fakeBackend{})
	out, err := f.wf.ActivateTrial(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Equal(t, KindActivated, out.Kind)
	assert.Equal(t, []backend.OfferForm{{PlanID: "free", UserID: 100}}, f.be.forms)
	assert.True(t, f.sess.Gate.Allowed(session.GateOfferInfo))
	assert.Equal(t, session.Browsing, f.sess.Stage())
}

func TestTrialUsedResets(t *testing.T) {
	trialErr := errors.Mark(&backend.DomainError{Status: 400, Message: "Пробная подписка уже использована"}, backend.ErrTrialUsed)
	f := newFixture(t, &fakeBackend{
		plans:  catalog,
		create: func(backend.OfferForm) (*backend.OfferResult, error) { return nil, trialErr },
	})
	_, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)

	out, err := f.wf.SelectPlan(context.Background(), f.sess, "free")
	require.NoError(t, err)
	assert.Equal(t, KindTrialUsed, out.Kind)
	assert.Equal(t, session.Browsing, f.sess.Stage())
	assert.Equal(t, menu.MainMenu(), f.sess.Replies)
}

func TestPromoRejectedPromptsAgain(t *testing.T) {
	promoErr := errors.Mark(&backend.DomainError{Status: 400, Message: "Промокод не найден"}, backend.ErrPromoRejected)
	f := newFixture(t, &fakeBackend{
		plans:  catalog,
		create: func(backend.OfferForm) (*backend.OfferResult, error) { return nil, promoErr },
	})
	_, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)
	_, err = f.wf.SelectPlan(context.Background(), f.sess, "month")
	require.NoError(t, err)

	out, err := f.wf.PromoInput(context.Background(), f.sess, "BAD")
	require.NoError(t, err)
	assert.Equal(t, KindPromoRejected, out.Kind)
	assert.Equal(t, "Промокод не найден", out.Message)
	assert.Equal(t, session.ActionAwaitingPromoCode, f.sess.PendingAction())
	assert.Empty(t, f.sess.Form().PromoCode)
	assert.Equal(t, "month", f.sess.Form().PlanID)
}

func TestSubmitFailureResetsAndPropagates(t *testing.T) {
	boom := errors.New("connection refused")
	f := newFixture(t, &fakeBackend{
		plans:  catalog,
		create: func(backend.OfferForm) (*backend.OfferResult, error) { return nil, boom },
	})
	_, err := f.wf.Start(context.Background(), f.sess)
	require.NoError(t, err)
	_, err = f.wf.SelectPlan(context.Background(), f.sess, "month")
	require.NoError(t, err)

	_, err = f.wf.SkipPromo(context.Background(), f.sess)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, session.Browsing, f.sess.Stage())
	assert.Equal(t, session.Form{}, f.sess.Form())
}

func TestPromoInputWithoutPrompt(t *testing.T) {
	f := newFixture(t, &fakeBackend{})
	_, err := f.wf.PromoInput(context.Background(), f.sess, "SAVE")
	assert.True(t, errors.Is(err, ErrNoPendingAction))
	_, err = f.wf.SkipPromo(context.Background(), f.sess)
	assert.True(t, errors.Is(err, ErrNoPendingAction))
}

// After every step a pending offer implies confirm and cancel are allowed.
func TestPendingOfferImpliesSettleable(t *testing.T) {
	f := newFixture(t, &fakeBackend{plans: catalog, create: pricedOffer})
	ctx := context.Background()
	check := func() {
		t.Helper()
		if f.sess.Pending() != nil {
			assert.True(t, f.sess.CanSettle())
		}
	}
	steps := []func() error{
		func() error { _, err := f.wf.Start(ctx, f.sess); return err },
		func() error { _, err := f.wf.SelectPlan(ctx, f.sess, "month"); return err },
		func() error { _, err := f.wf.PromoInput(ctx, f.sess, "SAVE"); return err },
		func() error { _, err := f.wf.Start(ctx, f.sess); return err },
		func() error { _, err := f.wf.Cancel(ctx, f.sess); return err },
		func() error { _, err := f.wf.SelectPlan(ctx, f.sess, "month2"); return err },
		func() error { _, err := f.wf.Confirm(ctx, f.sess); return err },
	}
	for _, step := range steps {
		require.NoError(t, step())
		check()
	}
}
