package database

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsConflict(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"serialization": {err: &pq.Error{Code: "40001"}, want: true},
		"deadlock":      {err: fmt.Errorf("lend: %w", &pq.Error{Code: "40P01"}), want: true},
		"unique":        {err: &pq.Error{Code: "23505"}, want: true},
		"fk violation":  {err: &pq.Error{Code: "23503"}, want: false},
		"plain":         {err: sql.ErrNoRows, want: false},
		"nil":           {err: nil, want: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsConflict(tc.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "40001"}))
}
