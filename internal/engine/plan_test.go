package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bianoble/glance-stream-sync/internal/identity/identitytest"
)

const planIndex = `{
  "format": "index:1.0",
  "index": {
    "com.ubuntu.cloud:released:download": {
      "datatype": "image-downloads",
      "format": "products:1.0",
      "path": "streams/v1/download.json"
    }
  }
}`

const planProducts = `{
  "format": "products:1.0",
  "content_id": "com.ubuntu.cloud:released:download",
  "products": {
    "com.ubuntu.cloud:server:24.04:amd64": {
      "arch": "amd64",
      "versions": {
        "20261001": {"items": {"disk1.img": {"ftype": "disk1.img", "path": "a.img", "size": 100}}},
        "20261015": {"items": {"disk1.img": {"ftype": "disk1.img", "path": "b.img", "size": 300}}}
      }
    },
    "com.ubuntu.cloud:server:24.04:arm64": {
      "arch": "arm64",
      "versions": {
        "20261015": {"items": {"disk1.img": {"ftype": "disk1.img", "path": "c.img", "size": 900}}}
      }
    }
  }
}`

func writeLocalMirror(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "streams", "v1", "index.json"), planIndex)
	writeFile(t, filepath.Join(root, "streams", "v1", "download.json"), planProducts)
	return root
}

func TestPlanListsSelectedItems(t *testing.T) {
	f := newFixture(t, identitytest.StandardState("RegionOne"), fixtureOptions{})
	root := writeLocalMirror(t)

	writeFile(t, f.paths.Mirrors, `region: RegionOne
cloud_name: test-cloud
content_id_template: "auto.sync"
use_swift: false
name_prefix: ""
mirror_list:
  - url: `+root+`
    path: streams/v1/index.json
    max: 1
    item_filters: ["arch=amd64"]
`)

	entries, err := Plan(context.Background(), f.paths, nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	require.NoError(t, e.Err)
	require.Len(t, e.Listing.Items, 1)
	assert.Equal(t, "20261015", e.Listing.Items[0].Version)
	assert.Equal(t, int64(300), e.Listing.TotalBytes())
	assert.Empty(t, f.srv.Requests(), "plan never talks to keystone")
}

func TestPlanEntryErrorDoesNotStopOthers(t *testing.T) {
	f := newFixture(t, identitytest.StandardState("RegionOne"), fixtureOptions{})
	root := writeLocalMirror(t)

	writeFile(t, f.paths.Mirrors, `region: RegionOne
cloud_name: test-cloud
content_id_template: "auto.sync"
use_swift: false
name_prefix: ""
mirror_list:
  - url: `+filepath.Join(root, "missing")+`
    path: streams/v1/index.json
    max: 1
  - url: `+root+`
    path: streams/v1/index.json
    max: 0
`)

	entries, err := Plan(context.Background(), f.paths, nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Error(t, entries[0].Err)
	require.NoError(t, entries[1].Err)
	assert.Len(t, entries[1].Listing.Items, 3)
}

func TestPlanNotReady(t *testing.T) {
	f := newFixture(t, identitytest.StandardState("RegionOne"), fixtureOptions{})
	require.NoError(t, os.Remove(f.paths.Identity))

	_, err := Plan(context.Background(), f.paths, nil, nil)
	assert.Error(t, err)
}
