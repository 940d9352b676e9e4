package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/permitprep/backend/internal/middleware"
	"github.com/permitprep/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	return rec
}

func TestRegisterLoginMe(t *testing.T) {
	h := NewHandler(NewMemoryStore(), testSecret)

	rec := post(h.Register, `{"email":" Pat@Example.com ","name":"Pat Doe","password":"hunter22","home_state":"ca"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var reg models.AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reg))
	assert.Equal(t, "pat@example.com", reg.User.Email)
	assert.Equal(t, "CA", reg.User.HomeState)
	assert.NotContains(t, rec.Body.String(), "hunter22")

	uid, err := middleware.ParseToken(testSecret, reg.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, uid)

	rec = post(h.Login, `{"email":"pat@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(h.Login, `{"email":"pat@example.com","password":"wrong-pass"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h.Login, `{"email":"nobody@example.com","password":"hunter22"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.GetCurrentUser(rec, req.WithContext(middleware.WithUserID(req.Context(), reg.User.ID)))
	require.Equal(t, http.StatusOK, rec.Code)

	var me models.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, "Pat", me.FirstName())
}

func TestRegister_Validation(t *testing.T) {
	h := NewHandler(NewMemoryStore(), testSecret)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing name", `{"email":"a@b.co","password":"longenough"}`, http.StatusBadRequest},
		{"short password", `{"email":"a@b.co","name":"A","password":"short"}`, http.StatusBadRequest},
		{"bad state", `{"email":"a@b.co","name":"A","password":"longenough","home_state":"Calif"}`, http.StatusBadRequest},
		{"ok", `{"email":"a@b.co","name":"A","password":"longenough"}`, http.StatusCreated},
		{"duplicate", `{"email":"A@B.co","name":"A","password":"longenough"}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, post(h.Register, tt.body).Code)
		})
	}
}

func TestGetCurrentUser_Unauthenticated(t *testing.T) {
	h := NewHandler(NewMemoryStore(), testSecret)
	rec := httptest.NewRecorder()
	h.GetCurrentUser(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
