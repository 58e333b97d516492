package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	assert.Contains(t, Short(), Version)
	assert.Contains(t, Short(), Revision)
	assert.Contains(t, Detailed(), "/")
	assert.True(t, strings.HasPrefix(DetailedWithApp(), AppName+" "))
	assert.True(t, strings.HasPrefix(UserAgent(), AppName+"/"+Version))
}

func TestFillFromBuildInfo_UsesVCSData(t *testing.T) {
	origVersion, origRevision, origBuildDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = origVersion, origRevision, origBuildDate
	})

	Version = devVersion
	Revision = "HEAD"
	BuildDate = ""

	fillFromBuildInfo("v1.4.0", map[string]string{
		"vcs.revision": "abc123",
		"vcs.modified": "true",
		"vcs.time":     "2025-06-01T10:00:00Z",
	})

	assert.Equal(t, "1.4.0", Version)
	assert.Equal(t, "abc123-dirty", Revision)
	assert.Equal(t, "2025-06-01T10:00:00Z", BuildDate)
}

func TestFillFromBuildInfo_KeepsLdflags(t *testing.T) {
	origVersion, origRevision, origBuildDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = origVersion, origRevision, origBuildDate
	})

	Version = "2.0.0"
	Revision = "deadbeef"
	BuildDate = "from-ldflags"

	fillFromBuildInfo("(devel)", map[string]string{"vcs.revision": "other"})

	assert.Equal(t, "2.0.0", Version)
	assert.Equal(t, "deadbeef", Revision)
	assert.Equal(t, "from-ldflags", BuildDate)
}
