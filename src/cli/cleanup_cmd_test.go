package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odf-cleanup/src/rbdapi"
)

// withFakeBackend swaps the connect hook for the duration of one test.
func withFakeBackend(t *testing.T, fake *rbdapi.FakeClient) {
	t.Helper()
	orig := connectBackend
	connectBackend = func(conf, keyring, pool string) (rbdapi.Client, error) {
		return fake, nil
	}
	t.Cleanup(func() { connectBackend = orig })
}

func tenantFixture() *rbdapi.FakeClient {
	fake := rbdapi.NewFake()
	fake.AddImage("ocp4-cluster-abc123-vol1", 10<<30, "")
	fake.AddImage("csi-snap-c1", 1<<30, "ocp4-cluster-abc123-vol1",
		rbdapi.SnapshotInfo{Name: "snap-a", Protected: true},
		rbdapi.SnapshotInfo{Name: "snap-b"},
	)
	return fake
}

func TestCleanupCmd_DryRunByDefault(t *testing.T) {
	fake := tenantFixture()
	withFakeBackend(t, fake)

	var out, errBuf bytes.Buffer
	cmd := NewRootCmd(&out, &errBuf)
	cmd.SetArgs([]string{"cleanup", "abc123", "--pool", "vms"})
	_, err := cmd.ExecuteC()
	require.NoError(t, err, "stderr: %s", errBuf.String())

	assert.Empty(t, fake.Journal, "dry-run must not touch the cluster")
	assert.Contains(t, fake.Images, "ocp4-cluster-abc123-vol1")

	output := out.String()
	assert.Contains(t, output, "ocp4-cluster-abc123-vol1")
	assert.Contains(t, output, "csi-snap-c1")
	assert.Contains(t, output, "Planned actions")
	assert.Contains(t, output, "remove image csi-snap-c1")
	assert.Contains(t, output, "SUCCESS")
}

func TestCleanupCmd_LiveRunRemovesEverything(t *testing.T) {
	fake := tenantFixture()
	withFakeBackend(t, fake)

	var out, errBuf bytes.Buffer
	cmd := NewRootCmd(&out, &errBuf)
	cmd.SetArgs([]string{
		"cleanup", "abc123",
		"--pool", "vms",
		"--dry-run=false", "--yes",
		"--settle-delay", "0s",
		"--flatten-poll-interval", "1ms",
		"--flatten-timeout", "50ms",
	})
	_, err := cmd.ExecuteC()
	require.NoError(t, err, "stderr: %s", errBuf.String())

	assert.Empty(t, fake.Images)
	assert.Contains(t, out.String(), "SUCCESS")
	assert.Equal(t, 1, fake.Closed, "session released exactly once")
}

func TestCleanupCmd_LiveRunPromptDeclined(t *testing.T) {
	fake := tenantFixture()
	withFakeBackend(t, fake)

	var out, errBuf bytes.Buffer
	cmd := NewRootCmd(&out, &errBuf)
	cmd.SetIn(strings.NewReader("n\n"))
	cmd.SetArgs([]string{"cleanup", "abc123", "--pool", "vms", "--dry-run=false"})
	_, err := cmd.ExecuteC()
	require.NoError(t, err)

	assert.Contains(t, out.String(), "aborted")
	assert.Empty(t, fake.Journal)
	assert.Contains(t, fake.Images, "csi-snap-c1")
}

func TestCleanupCmd_FailureYieldsError(t *testing.T) {
	fake := tenantFixture()
	fake.Errors["remove-image:ocp4-cluster-abc123-vol1"] = errors.New("cannot delete")
	withFakeBackend(t, fake)

	var out, errBuf bytes.Buffer
	cmd := NewRootCmd(&out, &errBuf)
	cmd.SetArgs([]string{
		"cleanup", "abc123",
		"--pool", "vms",
		"--dry-run=false", "--yes",
		"--settle-delay", "0s",
		"--flatten-poll-interval", "1ms",
		"--flatten-timeout", "50ms",
	})
	_, err := cmd.ExecuteC()
	require.Error(t, err)
	assert.Contains(t, out.String(), "FAILURE")
	assert.Contains(t, out.String(), "failed to remove: ocp4-cluster-abc123-vol1")
}

func TestCleanupCmd_PoolRequired(t *testing.T) {
	withFakeBackend(t, rbdapi.NewFake())

	var out, errBuf bytes.Buffer
	cmd := NewRootCmd(&out, &errBuf)
	cmd.SetArgs([]string{"cleanup", "abc123"})
	_, err := cmd.ExecuteC()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--pool")
}

func TestCleanupCmd_NothingToDo(t *testing.T) {
	withFakeBackend(t, rbdapi.NewFake())

	var out, errBuf bytes.Buffer
	cmd := NewRootCmd(&out, &errBuf)
	cmd.SetArgs([]string{"cleanup", "abc123", "--pool", "vms"})
	_, err := cmd.ExecuteC()
	require.NoError(t, err)
	assert.Contains(t, out.String(), "nothing to clean up")
}
