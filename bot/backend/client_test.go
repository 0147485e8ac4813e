package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:          srv.URL + "/",
		Token:            "tok",
		Transport:        http.DefaultTransport,
		TrialErrorPrefix: "Пробная подписка",
		PromoErrorPrefix: "Промокод",
	})
}

func TestFindUserNotFoundIsNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/42", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		http.NotFound(w, r)
	})
	u, err := c.FindUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestEmptyLookupBodyIsAbsent(t *testing.T) {
	for _, body := range []string{"", "null", " null\n"} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		})
		ctx := context.Background()

		u, err := c.FindUser(ctx, 42)
		require.NoError(t, err, "body %q", body)
		assert.Nil(t, u, "body %q", body)

		owner, err := c.FindUserByInviteCode(ctx, "abc")
		require.NoError(t, err, "body %q", body)
		assert.Nil(t, owner, "body %q", body)

		paid, err := c.PriorPaidOffer(ctx, 42)
		require.NoError(t, err, "body %q", body)
		assert.Nil(t, paid, "body %q", body)
	}
}

func TestPlansDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subscriptions", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("user_id"))
		_, _ = io.WriteString(w, `[{"name_id":"basic","title":"Basic","date_limit":2592000,"data_limit":0,"price":300,"with_promo":true}]`)
	})
	plans, err := c.Plans(context.Background(), 7)
	require.NoError(t, err)
	want := []Plan{{ID: "basic", Title: "Basic", DateLimit: 2592000, Price: 300, WithPromo: true}}
	if diff := cmp.Diff(want, plans); diff != "" {
		t.Fatalf("plans mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateOfferSendsFormAndDecodesNumericID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var form map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&form))
		assert.Equal(t, map[string]any{"sub_id": "pro", "user_id": float64(7), "promo_id": "FRIEND10"}, form)
		_, _ = io.WriteString(w, `{"offerId":17,"subname":"Pro","price":555.5,"discount":10,"promoName":"FRIEND10","toPay":500}`)
	})
	res, err := c.CreateOffer(context.Background(), OfferForm{PlanID: "pro", UserID: 7, PromoCode: "FRIEND10"})
	require.NoError(t, err)
	assert.False(t, res.Activated())
	assert.Equal(t, FlexString("17"), res.OfferID)
	assert.Equal(t, 500.0, res.ToPay)
}

func TestDomainErrorsAreMarked(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		ctype    string
		trial    bool
		promo    bool
		wantText string
	}{
		{"trial text", "Пробная подписка уже использована", "text/html; charset=utf-8", true, false, "Пробная подписка уже использована"},
		{"promo json string", `"Промокод не найден"`, "application/json", false, true, "Промокод не найден"},
		{"other text", "Пользователь заблокирован", "text/plain", false, false, "Пользователь заблокирован"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.ctype)
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.CreateOffer(context.Background(), OfferForm{PlanID: "free", UserID: 1})
			require.Error(t, err)
			de, ok := AsDomainError(err)
			require.True(t, ok)
			assert.Equal(t, tc.wantText, de.Message)
			assert.Equal(t, tc.wantText, err.Error())
			assert.Equal(t, tc.trial, IsTrialUsed(err))
			assert.Equal(t, tc.promo, IsPromoRejected(err))
		})
	}
}

func TestJSONObjectErrorIsGeneric(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"db down"}`)
	})
	err := c.RefreshConnection(context.Background(), 1)
	require.Error(t, err)
	_, ok := AsDomainError(err)
	assert.False(t, ok)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
}

func TestNotFoundOnNonLookupIsError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.OfferStatus(context.Background(), 1)
	assert.Error(t, err)
}

func TestFlexString(t *testing.T) {
	var v struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
		C FlexString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":12,"b":"2024-01-02","c":null}`), &v))
	assert.Equal(t, FlexString("12"), v.A)
	assert.Equal(t, int64(12), v.A.Int64())
	assert.Equal(t, "2024-01-02", v.B.String())
	assert.Equal(t, FlexString(""), v.C)
}
