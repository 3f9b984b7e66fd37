package safeurl

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func staticLookup(ips map[string][]net.IP) func(ctx context.Context, host string) ([]net.IP, error) {
	return func(_ context.Context, host string) ([]net.IP, error) {
		if found, ok := ips[host]; ok {
			return found, nil
		}
		return nil, errors.New("no such host")
	}
}

func TestIsSafeReference_PublicURLs(t *testing.T) {
	v := NewWithLookup(staticLookup(map[string][]net.IP{
		"example.com":     {net.ParseIP("93.184.216.34")},
		"cdn.example.com": {net.ParseIP("93.184.216.34"), net.ParseIP("2606:2800:220:1::1")},
	}))

	assert.True(t, v.IsSafeReference("https://example.com/image.png"))
	assert.True(t, v.IsSafeReference("http://cdn.example.com/a/b?c=d"))
	assert.True(t, v.IsSafeReference("https://93.184.216.34/direct"))
}

func TestIsSafeReference_InternalTargets(t *testing.T) {
	v := NewWithLookup(staticLookup(nil))

	for _, ref := range []string{
		"http://127.0.0.1/admin",
		"http://127.0.0.1:6379/",
		"https://169.254.169.254/latest/meta-data/",
		"http://10.0.0.5/internal",
		"http://172.16.3.4/",
		"http://192.168.1.1/router",
		"http://0.0.0.0/",
		"http://[::1]/",
		"http://[fe80::1]/",
		"http://localhost/",
		"http://localhost:8080/x",
		"http://foo.localhost/",
		"http://metadata.internal/",
	} {
		assert.False(t, v.IsSafeReference(ref), "must reject %s", ref)
	}
}

func TestIsSafeReference_ResolvesToInternal(t *testing.T) {
	v := NewWithLookup(staticLookup(map[string][]net.IP{
		"rebind.example.com": {net.ParseIP("93.184.216.34"), net.ParseIP("127.0.0.1")},
	}))

	// One internal address among the results poisons the whole set.
	assert.False(t, v.IsSafeReference("https://rebind.example.com/x"))
}

func TestIsSafeReference_ResolutionFailureFailsClosed(t *testing.T) {
	v := NewWithLookup(staticLookup(nil))

	assert.False(t, v.IsSafeReference("https://does-not-resolve.example.com/x"))
}

func TestIsSafeReference_Schemes(t *testing.T) {
	v := NewWithLookup(staticLookup(nil))

	assert.False(t, v.IsSafeReference("ftp://example.com/file"))
	assert.False(t, v.IsSafeReference("file:///etc/passwd"))
	assert.False(t, v.IsSafeReference("gopher://example.com/"))
	assert.True(t, v.IsSafeReference("data:image/png;base64,iVBORw0KGgo="))
}

func TestIsSafeReference_ContentIDs(t *testing.T) {
	v := NewWithLookup(staticLookup(nil))

	assert.True(t, v.IsSafeReference("QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"))
	assert.True(t, v.IsSafeReference("bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"))
}

func TestIsSafeReference_Opaque(t *testing.T) {
	v := NewWithLookup(staticLookup(nil))

	assert.False(t, v.IsSafeReference(""))
	assert.True(t, v.IsSafeReference("some-internal-handle"), "non-URL values are opaque identifiers")
	assert.True(t, v.IsSafeReference(strings.Repeat("a", 1500)))
}
