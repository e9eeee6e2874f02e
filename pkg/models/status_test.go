package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHouseStatus_String(t *testing.T) {
	tests := []struct {
		status HouseStatus
		want   string
	}{
		{HouseStatusUnset, "unset"},
		{HouseStatusPending, "pending"},
		{HouseStatusSuccess, "success"},
		{HouseStatusFailure, "failure"},
		{HouseStatusNotFound, "not_found"},
		{HouseStatusDBError, "db_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestHouseStatus_IsValid(t *testing.T) {
	tests := []struct {
		status HouseStatus
		want   bool
	}{
		{HouseStatusPending, true},
		{HouseStatusSuccess, true},
		{HouseStatusFailure, true},
		{HouseStatusUnset, false},
		{HouseStatusNotFound, false},
		{HouseStatusDBError, false},
		{HouseStatus("arbitrary"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsValid(), "HouseStatus(%q).IsValid()", string(tt.status))
	}
}

func TestResultConstructors(t *testing.T) {
	ok := Ok([]byte("page"))
	assert.True(t, ok.IsOK())
	assert.Equal(t, []byte("page"), ok.Value)

	blocked := Blocked[[]byte]("captcha form")
	assert.False(t, blocked.IsOK())
	assert.Equal(t, ResultBlocked, blocked.Status)
	assert.Equal(t, "captcha form", blocked.Reason)
	assert.Nil(t, blocked.Value)

	assert.Equal(t, ResultNotFound, NotFound[int]("no cache").Status)
	assert.Equal(t, ResultFailed, Failed[AttributeRecord]("address missing").Status)
	assert.Equal(t, "unset", ResultStatus("").String())
}
