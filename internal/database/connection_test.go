package database

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession_noContactPoints_returnsError(t *testing.T) {
	t.Parallel()

	_, err := NewSession(SessionConfig{ContactPoints: []string{" ", ""}})

	require.ErrorIs(t, err, ErrNoContactPoints)
}

func TestNewClusterConfig_appliesSettings(t *testing.T) {
	t.Parallel()

	cluster, err := newClusterConfig(SessionConfig{
		ContactPoints:     []string{" 10.0.0.1 ", "10.0.0.2"},
		Port:              9142,
		Username:          "cassandra",
		Password:          "secret",
		Consistency:       gocql.LocalQuorum,
		SerialConsistency: gocql.LocalSerial,
		ConnectTimeout:    3 * time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cluster.Hosts)
	assert.Equal(t, 9142, cluster.Port)
	assert.Equal(t, gocql.LocalQuorum, cluster.Consistency)
	assert.Equal(t, gocql.LocalSerial, cluster.SerialConsistency)
	assert.Equal(t, 3*time.Second, cluster.ConnectTimeout)
	assert.Equal(t, 3*time.Second, cluster.Timeout)

	auth, ok := cluster.Authenticator.(gocql.PasswordAuthenticator)
	require.True(t, ok)
	assert.Equal(t, "cassandra", auth.Username)
}

func TestNewClusterConfig_defaults(t *testing.T) {
	t.Parallel()

	cluster, err := newClusterConfig(SessionConfig{ContactPoints: []string{"127.0.0.1"}})

	require.NoError(t, err)
	assert.Equal(t, 9042, cluster.Port)
	assert.Equal(t, defaultConnectTimeout, cluster.ConnectTimeout)
	assert.Nil(t, cluster.Authenticator)
}

func TestParseConsistency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    gocql.Consistency
		wantErr bool
	}{
		{in: "QUORUM", want: gocql.Quorum},
		{in: "local_quorum", want: gocql.LocalQuorum},
		{in: " one ", want: gocql.One},
		{in: "ALL", want: gocql.All},
		{in: "MOST", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseConsistency(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConsistency)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSerialConsistency(t *testing.T) {
	t.Parallel()

	got, err := ParseSerialConsistency("serial")
	require.NoError(t, err)
	assert.Equal(t, gocql.Serial, got)

	got, err = ParseSerialConsistency("LOCAL_SERIAL")
	require.NoError(t, err)
	assert.Equal(t, gocql.LocalSerial, got)

	_, err = ParseSerialConsistency("QUORUM")
	require.ErrorIs(t, err, ErrInvalidConsistency)
}

func TestIsWriteTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "coordinator write timeout", err: &gocql.RequestErrWriteTimeout{WriteType: "CAS"}, want: true},
		{name: "wrapped write timeout", err: fmt.Errorf("insert: %w", &gocql.RequestErrWriteTimeout{}), want: true},
		{name: "client timeout", err: gocql.ErrTimeoutNoResponse, want: true},
		{name: "read timeout", err: &gocql.RequestErrReadTimeout{}, want: false},
		{name: "other", err: errors.New("unavailable"), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, IsWriteTimeout(tt.err))
		})
	}
}

func TestNewKeyspaceSession_invalidKeyspace_returnsError(t *testing.T) {
	t.Parallel()

	_, err := NewKeyspaceSession(SessionConfig{ContactPoints: []string{"127.0.0.1"}}, "bad-name")

	require.ErrorIs(t, err, ErrInvalidKeyspace)
}
