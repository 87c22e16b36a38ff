package vault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	v := New(time.Minute, time.Minute)
	handle := v.Put("secret-preimage", map[string]string{"kind": "preimage"})
	require.NotEmpty(t, handle)

	entry, err := v.Get(handle)
	require.NoError(t, err)
	require.Equal(t, "secret-preimage", entry.Value)
	require.Equal(t, "preimage", entry.Metadata["kind"])
}

func TestGetUnknownHandleFails(t *testing.T) {
	v := New(time.Minute, time.Minute)
	_, err := v.Get("does-not-exist")
	require.Error(t, err)
}

func TestDeleteInvalidatesHandle(t *testing.T) {
	v := New(time.Minute, time.Minute)
	handle := v.Put("x", nil)
	v.Delete(handle)
	_, err := v.Get(handle)
	require.Error(t, err)
}

func TestHandlesExpire(t *testing.T) {
	v := New(20*time.Millisecond, 10*time.Millisecond)
	handle := v.Put("transient", nil)

	_, err := v.Get(handle)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	_, err = v.Get(handle)
	require.Error(t, err)
}
