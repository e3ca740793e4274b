package factory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/convergence-vcs/convergence/storagedriver/factory"
	_ "github.com/convergence-vcs/convergence/storagedriver/inmemory"
)

func TestCreateDispatchesToRegisteredDriver(t *testing.T) {
	driver, err := factory.Create(context.Background(), "inmemory", nil)
	require.NoError(t, err)
	require.Equal(t, "inmemory", driver.Name())
}

func TestCreateUnknownNameReturnsError(t *testing.T) {
	_, err := factory.Create(context.Background(), "does-not-exist", nil)
	require.Error(t, err)
}
