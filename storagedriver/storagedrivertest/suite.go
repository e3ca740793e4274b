// Package storagedrivertest is a shared conformance suite that every
// storagedriver.StorageDriver implementation can run against, the way the
// teacher's storage driver testsuites package exercises every backend
// (filesystem, inmemory, cloud) through one table of behavioral contracts
// instead of duplicating them per driver.
package storagedrivertest

import (
	"context"
	"io"

	"github.com/stretchr/testify/suite"

	"github.com/convergence-vcs/convergence/storagedriver"
)

// Constructor builds a fresh, empty driver instance for one test.
type Constructor func() (storagedriver.StorageDriver, error)

// Suite is a testify/suite.Suite that exercises the StorageDriver contract
// against whatever driver Constructor produces.
type Suite struct {
	suite.Suite
	constructor Constructor
	driver      storagedriver.StorageDriver
}

// NewSuite builds a Suite parameterized by how to construct the driver
// under test.
func NewSuite(constructor Constructor) *Suite {
	return &Suite{constructor: constructor}
}

func (s *Suite) SetupTest() {
	driver, err := s.constructor()
	s.Require().NoError(err)
	s.driver = driver
}

func (s *Suite) TestPutGetContentRoundTrip() {
	ctx := context.Background()
	content := []byte("the quick brown fox")

	s.Require().NoError(s.driver.PutContent(ctx, "/a/b/file", content))

	got, err := s.driver.GetContent(ctx, "/a/b/file")
	s.Require().NoError(err)
	s.Equal(content, got)
}

func (s *Suite) TestPutOverwritesExistingContent() {
	ctx := context.Background()

	s.Require().NoError(s.driver.PutContent(ctx, "/file", []byte("first")))
	s.Require().NoError(s.driver.PutContent(ctx, "/file", []byte("second")))

	got, err := s.driver.GetContent(ctx, "/file")
	s.Require().NoError(err)
	s.Equal([]byte("second"), got)
}

func (s *Suite) TestGetMissingReturnsPathNotFound() {
	ctx := context.Background()

	_, err := s.driver.GetContent(ctx, "/never/written")
	s.Require().Error(err)
	_, ok := err.(storagedriver.PathNotFoundError)
	s.True(ok, "expected PathNotFoundError, got %T", err)
}

func (s *Suite) TestReaderHonorsOffset() {
	ctx := context.Background()
	s.Require().NoError(s.driver.PutContent(ctx, "/file", []byte("0123456789")))

	r, err := s.driver.Reader(ctx, "/file", 5)
	s.Require().NoError(err)
	defer r.Close()

	rest, err := io.ReadAll(r)
	s.Require().NoError(err)
	s.Equal([]byte("56789"), rest)
}

func (s *Suite) TestReaderMissingReturnsPathNotFound() {
	ctx := context.Background()

	_, err := s.driver.Reader(ctx, "/never/written", 0)
	s.Require().Error(err)
	_, ok := err.(storagedriver.PathNotFoundError)
	s.True(ok, "expected PathNotFoundError, got %T", err)
}

func (s *Suite) TestWriterCommitPersistsContent() {
	ctx := context.Background()

	w, err := s.driver.Writer(ctx, "/staged/file", false)
	s.Require().NoError(err)

	_, err = w.Write([]byte("hello "))
	s.Require().NoError(err)
	_, err = w.Write([]byte("world"))
	s.Require().NoError(err)
	s.Equal(int64(len("hello world")), w.Size())
	s.Require().NoError(w.Commit())

	got, err := s.driver.GetContent(ctx, "/staged/file")
	s.Require().NoError(err)
	s.Equal([]byte("hello world"), got)
}

func (s *Suite) TestWriterCancelDiscardsContent() {
	ctx := context.Background()

	w, err := s.driver.Writer(ctx, "/staged/file", false)
	s.Require().NoError(err)
	_, err = w.Write([]byte("abandoned"))
	s.Require().NoError(err)
	s.Require().NoError(w.Cancel())

	_, err = s.driver.GetContent(ctx, "/staged/file")
	s.Require().Error(err)
}

func (s *Suite) TestStatReportsSize() {
	ctx := context.Background()
	s.Require().NoError(s.driver.PutContent(ctx, "/file", []byte("twelve bytes")))

	fi, err := s.driver.Stat(ctx, "/file")
	s.Require().NoError(err)
	s.Equal(int64(len("twelve bytes")), fi.Size)
}

func (s *Suite) TestListReturnsDirectChildren() {
	ctx := context.Background()
	s.Require().NoError(s.driver.PutContent(ctx, "/dir/one", []byte("1")))
	s.Require().NoError(s.driver.PutContent(ctx, "/dir/two", []byte("2")))

	children, err := s.driver.List(ctx, "/dir")
	s.Require().NoError(err)
	s.Len(children, 2)
}

func (s *Suite) TestMoveRelocatesContent() {
	ctx := context.Background()
	s.Require().NoError(s.driver.PutContent(ctx, "/src", []byte("payload")))

	s.Require().NoError(s.driver.Move(ctx, "/src", "/dst"))

	got, err := s.driver.GetContent(ctx, "/dst")
	s.Require().NoError(err)
	s.Equal([]byte("payload"), got)

	_, err = s.driver.GetContent(ctx, "/src")
	s.Require().Error(err)
}

func (s *Suite) TestDeleteRemovesContent() {
	ctx := context.Background()
	s.Require().NoError(s.driver.PutContent(ctx, "/file", []byte("gone soon")))

	s.Require().NoError(s.driver.Delete(ctx, "/file"))

	_, err := s.driver.GetContent(ctx, "/file")
	s.Require().Error(err)
}

func (s *Suite) TestDeleteMissingReturnsPathNotFound() {
	ctx := context.Background()

	err := s.driver.Delete(ctx, "/never/written")
	s.Require().Error(err)
	_, ok := err.(storagedriver.PathNotFoundError)
	s.True(ok, "expected PathNotFoundError, got %T", err)
}
