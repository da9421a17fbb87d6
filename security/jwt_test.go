package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	service := NewJWTService("test-secret")

	tokenString, err := service.GenerateToken("user123", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenString)

	token, err := service.ValidateToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "user123", token.Subject())
}

func TestTokenExpiration(t *testing.T) {
	service := NewJWTService("test-secret")

	tokenString, err := service.GenerateToken("user123", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = service.ValidateToken(tokenString)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exp")
}

func TestTokenWithDifferentSecrets(t *testing.T) {
	genService := NewJWTService("correct-secret")
	tokenString, err := genService.GenerateToken("user123", time.Hour)
	require.NoError(t, err)

	valService := NewJWTService("wrong-secret")
	_, err = valService.ValidateToken(tokenString)
	assert.Error(t, err)
}

func BenchmarkGenerateToken(b *testing.B) {
	service := NewJWTService("benchmark-secret")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = service.GenerateToken("user123", time.Hour)
	}
}

func BenchmarkValidateToken(b *testing.B) {
	service := NewJWTService("benchmark-secret")
	token, _ := service.GenerateToken("user123", time.Hour)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = service.ValidateToken(token)
	}
}
