package sharedmem_test

import (
	"testing"

	"github.com/intelpmu/ipmcore/pkg/sharedmem"
	"github.com/stretchr/testify/require"
)

func TestMemFDObjectSize(t *testing.T) {
	obj, err := sharedmem.NewMemFDObject("test", 4096)
	require.NoError(t, err)
	defer obj.Close()

	require.Equal(t, uintptr(4096), obj.Size())
}

func TestMemFDObjectMapWriteReadBack(t *testing.T) {
	obj, err := sharedmem.NewMemFDObject("test", 4096)
	require.NoError(t, err)
	defer obj.Close()

	mapping, err := obj.Map()
	require.NoError(t, err)

	buf := mapping.Bytes()
	require.Len(t, buf, 4096)
	buf[0] = 0xab

	require.NoError(t, mapping.Unmap())
}

func TestMemFDObjectUnmapIsSafeAfterAlreadyUnmapped(t *testing.T) {
	obj, err := sharedmem.NewMemFDObject("test", 4096)
	require.NoError(t, err)
	defer obj.Close()

	mapping, err := obj.Map()
	require.NoError(t, err)
	require.NoError(t, mapping.Unmap())
	require.NoError(t, mapping.Unmap())
}

func TestMemFDObjectImplementsObject(t *testing.T) {
	var _ sharedmem.Object = (*sharedmem.MemFDObject)(nil)
}
