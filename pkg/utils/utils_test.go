package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTServiceRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret")
	token, err := svc.SignAccessToken("u-1", "a@example.org", time.Hour)
	require.NoError(t, err)

	caller, err := svc.ExtractCaller(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", caller.UserID)
	assert.Equal(t, "a@example.org", caller.Email)
	assert.Equal(t, token, caller.AccessToken)
	assert.False(t, TokenExpired(token))
}

func TestJWTServiceRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("one").SignAccessToken("u-1", "", time.Hour)
	require.NoError(t, err)

	_, err = NewJWTService("two").ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTServiceExpired(t *testing.T) {
	svc := NewJWTService("test-secret")
	token, err := svc.SignAccessToken("u-1", "", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.True(t, TokenExpired(token))
}

func TestTokenExpiredIgnoresGarbage(t *testing.T) {
	assert.False(t, TokenExpired("not-a-jwt"))
}

func TestPKCEChallenge(t *testing.T) {
	// RFC 7636 appendix B.
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		PKCEChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))

	verifier, challenge, err := NewPKCEVerifier()
	require.NoError(t, err)
	assert.Len(t, verifier, 43)
	assert.Equal(t, PKCEChallenge(verifier), challenge)
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "Jan 15, 2024", FormatDate("2024-01-15", DateLayoutShort))
	assert.Equal(t, "January 15, 2024", FormatDate("2024-01-15T10:00:00Z", DateLayoutFull))
	assert.Equal(t, "N/A", FormatDate("", DateLayoutShort))
	assert.Equal(t, "Invalid date", FormatDate("15/01/2024", DateLayoutShort))
}

func TestFormatRelativeDate(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "3 days ago", FormatRelativeDate("2024-03-07T12:00:00Z", now))
	assert.Equal(t, "N/A", FormatRelativeDate("", now))
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "MG", Initials("maria garcia lopez"))
	assert.Equal(t, "A", Initials("Ada"))
	assert.Equal(t, "U", Initials("   "))
	assert.Equal(t, "ÉÖ", Initials("émile ösz"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "org-1/b-1/abc-photo-one.jpg", ObjectName("/org-1/b-1/", "Photo One.JPG", "abc"))
	assert.Equal(t, "org-1/abc-photo.png", ObjectName("org-1", ".png", "abc"))
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, "--%", Percentage(0, 0))
	assert.Equal(t, "33%", Percentage(1, 3))
	assert.Equal(t, "67%", Percentage(2, 3))
}

func TestWantsJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.False(t, WantsJSON(r))

	r.Header.Set("Accept", "text/html, application/json;q=0.9")
	assert.True(t, WantsJSON(r))
}

func TestWriteActionError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteActionError(rec, http.StatusUnprocessableEntity, "Passwords do not match")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error":"Passwords do not match"}`, rec.Body.String())
}

func TestPaginatedResponse(t *testing.T) {
	resp := PaginatedResponse([]int{1}, 2, 10, 21)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 3, resp.Meta.TotalPages)
}
