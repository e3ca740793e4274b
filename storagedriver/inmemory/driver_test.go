package inmemory

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/convergence-vcs/convergence/storagedriver"
	"github.com/convergence-vcs/convergence/storagedriver/storagedrivertest"
)

func TestInMemoryDriverSuite(t *testing.T) {
	suite.Run(t, storagedrivertest.NewSuite(func() (storagedriver.StorageDriver, error) {
		return New(), nil
	}))
}
