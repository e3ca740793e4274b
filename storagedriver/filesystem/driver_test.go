package filesystem

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/convergence-vcs/convergence/storagedriver"
	"github.com/convergence-vcs/convergence/storagedriver/storagedrivertest"
)

func TestFilesystemDriverSuite(t *testing.T) {
	suite.Run(t, storagedrivertest.NewSuite(func() (storagedriver.StorageDriver, error) {
		return New(t.TempDir()), nil
	}))
}
