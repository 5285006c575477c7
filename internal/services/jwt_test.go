package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("petshop", []byte("secret"))
	token, err := svc.GenerateToken(42, time.Hour)
	require.NoError(t, err)

	uid, err := svc.ValidateToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), uid)
}

func TestJWTRejects(t *testing.T) {
	svc := NewJWTService("petshop", []byte("secret"))

	expired, err := svc.GenerateToken(1, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.Error(t, err)

	other, err := NewJWTService("someone-else", []byte("secret")).GenerateToken(1, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(other)
	assert.Error(t, err)

	forged, err := NewJWTService("petshop", []byte("wrong")).GenerateToken(1, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.Error(t, err)

	_, err = svc.ValidateToken("")
	assert.Error(t, err)

	_, err = NewJWTService("petshop", nil).ValidateToken(expired)
	assert.Error(t, err)
}
