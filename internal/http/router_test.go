package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/docstore"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/health"
	"github.com/fjod/storefront/internal/identity"
	"github.com/fjod/storefront/internal/kvstore"
	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/internal/profile"
	"github.com/fjod/storefront/internal/session"
	"github.com/fjod/storefront/internal/storefront"
)

var testSecrets = map[string]string{
	identity.ProviderGoogle:   "google-secret",
	identity.ProviderFacebook: "facebook-secret",
}

type fakeHealth struct {
	report health.Report
}

func (f *fakeHealth) Check(context.Context) health.Report { return f.report }

type testAPI struct {
	handler http.Handler
	docs    *docstore.MemoryStore
	health  *fakeHealth
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	return setupAPIWithQuotas(t, nil)
}

func setupAPIWithQuotas(t *testing.T, quotas map[string]int) *testAPI {
	t.Helper()
	logger := zap.NewNop()

	products, err := catalog.NewRepository(":memory:")
	require.NoError(t, err)
	require.NoError(t, products.RunMigrations())
	t.Cleanup(func() { products.Close() })

	docs := docstore.NewMemoryStore()
	registry := storefront.NewRegistry(storefront.Deps{
		Store:          kvstore.NewMemoryStore(),
		Platform:       identity.NewPlatform(docs, testSecrets, logger),
		Reconciler:     profile.NewReconciler(docs, quotas, logger),
		SessionOptions: session.Options{ReconcileTimeout: time.Second},
		Logger:         logger,
	})
	t.Cleanup(registry.Close)

	fh := &fakeHealth{report: health.Report{Status: "ok", Checks: map[string]string{"redis": "ok"}}}
	return &testAPI{
		handler: NewRouter(RouterConfig{
			Products: products,
			Registry: registry,
			Checkout: checkout.NewService(orders.NewRepository(docs, logger), events.NewNopPublisher(logger), logger),
			Health:   fh,
			Logger:   logger,
		}),
		docs:   docs,
		health: fh,
	}
}

func (a *testAPI) do(t *testing.T, method, path, clientID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if clientID != "" {
		req.Header.Set(ClientIDHeader, clientID)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func idToken(t *testing.T, provider, subject, email string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":   provider,
		"sub":   subject,
		"email": email,
		"name":  "Ada",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecrets[provider]))
	require.NoError(t, err)
	return signed
}

func (a *testAPI) signIn(t *testing.T, clientID, provider, subject, email string) SessionResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/session/sign-in", clientID, SignInRequestDTO{
		Provider: provider,
		Token:    idToken(t, provider, subject, email),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[SessionResponse](t, rec)
}

func TestProducts(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[ProductsResponse](t, rec).Products, 5)

	rec = api.do(t, http.MethodGet, "/api/v1/products/2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), decodeBody[domain.Product](t, rec).ID)

	rec = api.do(t, http.MethodGet, "/api/v1/products/42", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "product_not_found", decodeBody[ErrorResponse](t, rec).Code)

	rec = api.do(t, http.MethodGet, "/api/v1/products/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClientID_Required(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_client_id", decodeBody[ErrorResponse](t, rec).Code)

	rec = api.do(t, http.MethodGet, "/api/v1/cart", "a:b", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_client_id", decodeBody[ErrorResponse](t, rec).Code)
}

func TestCart_Flow(t *testing.T) {
	api := setupAPI(t)
	const client = "browser-1"

	rec := api.do(t, http.MethodPost, "/api/v1/cart/items", client, AddItemRequestDTO{ProductID: 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cart := decodeBody[CartResponse](t, rec)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 1, cart.TotalQuantity)
	assert.Equal(t, 199.99, cart.TotalPrice)

	rec = api.do(t, http.MethodPost, "/api/v1/cart/items/1/increment", client, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeBody[CartResponse](t, rec).TotalQuantity)

	api.do(t, http.MethodPost, "/api/v1/cart/items/1/decrement", client, nil)
	rec = api.do(t, http.MethodPost, "/api/v1/cart/items/1/decrement", client, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[CartResponse](t, rec).Items)

	rec = api.do(t, http.MethodPost, "/api/v1/cart/items", client, AddItemRequestDTO{ProductID: 42})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/cart/items", client, AddItemRequestDTO{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCart_IsPerClient(t *testing.T) {
	api := setupAPI(t)

	api.do(t, http.MethodPost, "/api/v1/cart/items", "browser-1", AddItemRequestDTO{ProductID: 1})
	api.do(t, http.MethodPost, "/api/v1/cart/items", "browser-1", AddItemRequestDTO{ProductID: 2})

	rec := api.do(t, http.MethodGet, "/api/v1/cart", "browser-2", nil)
	assert.Empty(t, decodeBody[CartResponse](t, rec).Items)

	rec = api.do(t, http.MethodDelete, "/api/v1/cart", "browser-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[CartResponse](t, rec).Items)
}

func TestTheme_Toggle(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/preferences/theme", "browser-1", nil)
	assert.Equal(t, storefront.ThemeDark, decodeBody[ThemeResponse](t, rec).Theme)

	rec = api.do(t, http.MethodPost, "/api/v1/preferences/theme/toggle", "browser-1", nil)
	assert.Equal(t, storefront.ThemeLight, decodeBody[ThemeResponse](t, rec).Theme)

	rec = api.do(t, http.MethodGet, "/api/v1/preferences/theme", "browser-1", nil)
	assert.Equal(t, storefront.ThemeLight, decodeBody[ThemeResponse](t, rec).Theme)
}

func TestSignIn_InvalidTokenFails(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/session/sign-in", "browser-1", SignInRequestDTO{
		Provider: identity.ProviderGoogle,
		Token:    "not-a-jwt",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "sign_in_failed", body.Code)
	assert.True(t, strings.HasPrefix(body.Error, "Login Failed: "), body.Error)
}

func TestSignIn_ThenSignOut(t *testing.T) {
	api := setupAPI(t)

	s := api.signIn(t, "browser-1", identity.ProviderGoogle, "g-1", "ada@example.com")
	assert.True(t, s.Authenticated)
	assert.False(t, s.IsAdmin)
	require.NotNil(t, s.User)
	assert.Equal(t, "ada@example.com", s.User.Email)
	assert.Equal(t, domain.RoleStandard, s.User.Role)

	rec := api.do(t, http.MethodPost, "/api/v1/session/sign-out", "browser-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody[SessionResponse](t, rec)
	assert.False(t, out.Authenticated)
	assert.Nil(t, out.User)
}

func TestSignIn_OverQuotaIsRefused(t *testing.T) {
	api := setupAPIWithQuotas(t, map[string]int{identity.ProviderGoogle: 0})

	rec := api.do(t, http.MethodPost, "/api/v1/session/sign-in", "browser-1", SignInRequestDTO{
		Provider: identity.ProviderGoogle,
		Token:    idToken(t, identity.ProviderGoogle, "g-1", "ada@example.com"),
	})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Equal(t, "quota_exceeded", decodeBody[ErrorResponse](t, rec).Code)

	rec = api.do(t, http.MethodGet, "/api/v1/session", "browser-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	s := decodeBody[SessionResponse](t, rec)
	assert.False(t, s.Authenticated)
	assert.Nil(t, s.User)

	rec = api.do(t, http.MethodGet, "/api/v1/admin/orders", "browser-1", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignIn_LinksAccounts(t *testing.T) {
	api := setupAPI(t)
	const client = "browser-1"

	first := api.signIn(t, client, identity.ProviderGoogle, "g-1", "ada@example.com")
	api.do(t, http.MethodPost, "/api/v1/session/sign-out", client, nil)

	fbToken := idToken(t, identity.ProviderFacebook, "fb-1", "ada@example.com")

	rec := api.do(t, http.MethodPost, "/api/v1/session/sign-in", client, SignInRequestDTO{
		Provider: identity.ProviderFacebook,
		Token:    fbToken,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decodeBody[ConflictResponse](t, rec)
	assert.Equal(t, "account_exists_with_different_credential", conflict.Code)
	assert.Equal(t, "ada@example.com", conflict.Email)
	assert.Equal(t, identity.ProviderGoogle, conflict.ExistingProvider)

	rec = api.do(t, http.MethodPost, "/api/v1/session/sign-in", client, SignInRequestDTO{
		Provider: identity.ProviderFacebook,
		Token:    fbToken,
		Link:     &LinkDecisionDTO{Confirm: false},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "link_declined", decodeBody[ErrorResponse](t, rec).Code)

	rec = api.do(t, http.MethodPost, "/api/v1/session/sign-in", client, SignInRequestDTO{
		Provider: identity.ProviderFacebook,
		Token:    fbToken,
		Link:     &LinkDecisionDTO{Confirm: true, Token: idToken(t, identity.ProviderGoogle, "g-1", "ada@example.com")},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	linked := decodeBody[SessionResponse](t, rec)
	require.NotNil(t, linked.User)
	assert.Equal(t, first.User.UID, linked.User.UID)
}

func TestCheckout(t *testing.T) {
	api := setupAPI(t)
	const client = "browser-1"
	input := checkout.Input{
		Recipient: domain.Recipient{Name: "Ada", Phone: "0912-345-678"},
		Delivery:  domain.Delivery{Method: checkout.DeliveryStorePickup, StoreName: "Main St", StoreAddress: "1 Main St"},
		Payment:   domain.Payment{Method: "cash_on_delivery"},
	}

	api.do(t, http.MethodPost, "/api/v1/cart/items", client, AddItemRequestDTO{ProductID: 1})

	rec := api.do(t, http.MethodPost, "/api/v1/checkout", client, input)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "validation_failed", body.Code)
	assert.Equal(t, "user", body.Details)

	s := api.signIn(t, client, identity.ProviderGoogle, "g-1", "ada@example.com")

	bad := input
	bad.Recipient.Phone = "call me"
	rec = api.do(t, http.MethodPost, "/api/v1/checkout", client, bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "recipient.phone", decodeBody[ErrorResponse](t, rec).Details)

	rec = api.do(t, http.MethodPost, "/api/v1/checkout", client, input)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decodeBody[domain.Order](t, rec)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, s.User.UID, order.UserID)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "0912345678", order.Info.Recipient.Phone)

	rec = api.do(t, http.MethodGet, "/api/v1/cart", client, nil)
	assert.Empty(t, decodeBody[CartResponse](t, rec).Items)
}

func TestAdminOrders(t *testing.T) {
	api := setupAPI(t)
	const client = "browser-1"
	ctx := context.Background()

	rec := api.do(t, http.MethodGet, "/api/v1/admin/orders", client, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s := api.signIn(t, client, identity.ProviderGoogle, "g-1", "ada@example.com")
	rec = api.do(t, http.MethodGet, "/api/v1/admin/orders", client, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	api.do(t, http.MethodPost, "/api/v1/cart/items", client, AddItemRequestDTO{ProductID: 3})
	rec = api.do(t, http.MethodPost, "/api/v1/checkout", client, checkout.Input{
		Recipient: domain.Recipient{Name: "Ada", Phone: "+886912345678"},
		Delivery:  domain.Delivery{Method: checkout.DeliveryHome, StoreAddress: "2 Side St"},
		Payment:   domain.Payment{Method: "cash_on_delivery"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderID := decodeBody[domain.Order](t, rec).ID

	require.NoError(t, api.docs.Update(ctx, "users", s.User.UID, map[string]interface{}{"role": string(domain.RoleAdmin)}))
	api.do(t, http.MethodPost, "/api/v1/session/sign-out", client, nil)
	admin := api.signIn(t, client, identity.ProviderGoogle, "g-1", "ada@example.com")
	require.True(t, admin.IsAdmin)

	rec = api.do(t, http.MethodGet, "/api/v1/admin/orders", client, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[OrdersResponse](t, rec).Orders
	require.Len(t, list, 1)
	assert.Equal(t, orderID, list[0].ID)

	note := "courier lost it"
	rec = api.do(t, http.MethodPatch, "/api/v1/admin/orders/"+orderID, client, UpdateStatusRequestDTO{Status: domain.OrderStatusProblem, Note: &note})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[domain.Order](t, rec)
	assert.Equal(t, domain.OrderStatusProblem, updated.Status)
	require.NotNil(t, updated.Note)
	assert.Equal(t, note, *updated.Note)

	rec = api.do(t, http.MethodPatch, "/api/v1/admin/orders/"+orderID, client, UpdateStatusRequestDTO{Status: "lost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status", decodeBody[ErrorResponse](t, rec).Code)

	rec = api.do(t, http.MethodDelete, "/api/v1/admin/orders/"+orderID, client, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodPatch, "/api/v1/admin/orders/"+orderID, client, UpdateStatusRequestDTO{Status: domain.OrderStatusShipped})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	api.health.report = health.Report{Status: "degraded", Checks: map[string]string{"redis": "connection refused"}}
	rec = api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "connection refused", decodeBody[health.Report](t, rec).Checks["redis"])
}

func TestHandleError_ProfileFailureIsBadGateway(t *testing.T) {
	rec := httptest.NewRecorder()
	handleError(rec, zap.NewNop(), &session.ProfileError{UID: "u", Err: assert.AnError})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "store_unavailable", decodeBody[ErrorResponse](t, rec).Code)

	rec = httptest.NewRecorder()
	handleError(rec, zap.NewNop(), &session.ProfileError{UID: "u", Err: profile.ErrQuotaExceeded})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
