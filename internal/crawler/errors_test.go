package crawler

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchError_Retriable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       FetchError
		retriable bool
	}{
		{"timeout", FetchError{Kind: FetchTimeout}, true},
		{"connection refused", FetchError{Kind: FetchConnectionRefused}, true},
		{"http 500", FetchError{Kind: FetchHTTPError, Status: 500}, true},
		{"http 503", FetchError{Kind: FetchHTTPError, Status: 503}, true},
		{"http 429", FetchError{Kind: FetchHTTPError, Status: 429}, true},
		{"http 404", FetchError{Kind: FetchHTTPError, Status: 404}, false},
		{"http 403", FetchError{Kind: FetchHTTPError, Status: 403}, false},
		{"redirect loop", FetchError{Kind: FetchTooManyRedirects}, false},
		{"robots blocked", FetchError{Kind: FetchBlocked}, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.retriable, tc.err.Retriable())
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	wrapped := fmt.Errorf("processing: %w", &FetchError{Kind: FetchTimeout, Err: base})

	fe, ok := AsFetchError(wrapped)
	require.True(t, ok)
	require.Equal(t, FetchTimeout, fe.Kind)
	require.ErrorIs(t, wrapped, base)

	se, ok := AsStoreError(fmt.Errorf("upsert: %w", &StoreError{Transient: true, Err: base}))
	require.True(t, ok)
	require.True(t, se.Transient)

	_, ok = AsExtractionError(wrapped)
	require.False(t, ok)
}
