package reconcile

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bianoble/glance-stream-sync/internal/identity"
)

// snapshotWith builds a catalog where each lookup step matches counts[i]
// records, with unrelated records mixed in.
func snapshotWith(counts [5]int) Snapshot {
	snap := Snapshot{
		Region: "RegionOne",
		Services: []identity.Service{
			{ID: "svc-glance", Name: "glance", Type: "image"},
		},
		Endpoints: []identity.Endpoint{
			{ID: "ep-glance", Region: "RegionOne", ServiceID: "svc-glance", PublicURL: "http://glance:9292"},
			// Same services in another region never count.
			{ID: "ep-swift-r2", Region: "RegionTwo", ServiceID: "swift-0", PublicURL: "http://r2:8080"},
			{ID: "ep-ps-r2", Region: "RegionTwo", ServiceID: "ps-0", PublicURL: "http://r2"},
		},
		Tenants: []identity.Tenant{
			{ID: "t-admin", Name: "admin"},
		},
	}

	for i := range counts[0] {
		snap.Services = append(snap.Services, identity.Service{ID: fmt.Sprintf("swift-%d", i), Name: "swift"})
	}
	for i := range counts[1] {
		snap.Endpoints = append(snap.Endpoints, identity.Endpoint{
			ID:          fmt.Sprintf("ep-swift-%d", i),
			Region:      "RegionOne",
			ServiceID:   "swift-0",
			PublicURL:   "https://swift.example.com:443/v1/AUTH_$(tenant_id)s",
			InternalURL: "http://10.5.0.10:8080/v1/AUTH_$(tenant_id)s",
			AdminURL:    "http://10.5.0.10:8080",
		})
	}
	for i := range counts[2] {
		snap.Services = append(snap.Services, identity.Service{ID: fmt.Sprintf("ps-%d", i), Name: "image-stream"})
	}
	for i := range counts[3] {
		snap.Endpoints = append(snap.Endpoints, identity.Endpoint{
			ID:        fmt.Sprintf("ep-ps-%d", i),
			Region:    "RegionOne",
			ServiceID: "ps-0",
			PublicURL: "http://10.5.0.20",
		})
	}
	for i := range counts[4] {
		snap.Tenants = append(snap.Tenants, identity.Tenant{ID: fmt.Sprintf("services-%d", i), Name: "services"})
	}
	return snap
}

func TestBuildPlan(t *testing.T) {
	plan, err := BuildPlan(snapshotWith([5]int{1, 1, 1, 1, 1}))
	require.NoError(t, err)

	assert.Equal(t, "ep-ps-0", plan.Delete.ID)
	assert.Equal(t, identity.Endpoint{
		Region:      "RegionOne",
		ServiceID:   "ps-0",
		PublicURL:   "https://swift.example.com:443/v1/AUTH_services-0/simplestreams/data/",
		InternalURL: "http://10.5.0.10:8080/v1/AUTH_services-0/simplestreams/data/",
		AdminURL:    "http://10.5.0.10:8080",
	}, plan.Create)
}

func TestBuildPlanEveryCountCombination(t *testing.T) {
	options := []int{0, 1, 2}
	var counts [5]int

	var walk func(step int)
	walk = func(step int) {
		if step == len(counts) {
			check(t, counts)
			return
		}
		for _, n := range options {
			counts[step] = n
			walk(step + 1)
		}
	}
	walk(0)
}

func check(t *testing.T, counts [5]int) {
	t.Helper()

	plan, err := BuildPlan(snapshotWith(counts))

	firstBad := -1
	for i, n := range counts {
		if n != 1 {
			firstBad = i
			break
		}
	}

	if firstBad < 0 {
		require.NoError(t, err, "counts %v", counts)
		require.NotNil(t, plan)
		return
	}

	require.Nil(t, plan, "counts %v", counts)
	var amb *Ambiguity
	require.True(t, errors.As(err, &amb), "counts %v: %v", counts, err)
	assert.Equal(t, Step(firstBad+1), amb.Step, "counts %v", counts)
	assert.Equal(t, counts[firstBad], amb.Count, "counts %v", counts)
	assert.Equal(t, "RegionOne", amb.Region)
}

func TestBuildPlanAdminURLVerbatim(t *testing.T) {
	snap := snapshotWith([5]int{1, 1, 1, 1, 1})
	for i := range snap.Endpoints {
		if snap.Endpoints[i].ID == "ep-swift-0" {
			snap.Endpoints[i].AdminURL = "http://admin.example:8080/v1/AUTH_$(tenant_id)s?x=1"
		}
	}

	plan, err := BuildPlan(snap)
	require.NoError(t, err)
	assert.Equal(t, "http://admin.example:8080/v1/AUTH_$(tenant_id)s?x=1", plan.Create.AdminURL)
}

func TestBuildPlanDropsQueryAndFragment(t *testing.T) {
	snap := snapshotWith([5]int{1, 1, 1, 1, 1})
	for i := range snap.Endpoints {
		if snap.Endpoints[i].ID == "ep-swift-0" {
			snap.Endpoints[i].PublicURL = "https://swift.example.com/v1/AUTH_x?temp=1#frag"
		}
	}

	plan, err := BuildPlan(snap)
	require.NoError(t, err)
	assert.Equal(t, "https://swift.example.com/v1/AUTH_services-0/simplestreams/data/", plan.Create.PublicURL)
}

func TestBuildPlanBadSwiftURL(t *testing.T) {
	snap := snapshotWith([5]int{1, 1, 1, 1, 1})
	for i := range snap.Endpoints {
		if snap.Endpoints[i].ID == "ep-swift-0" {
			snap.Endpoints[i].InternalURL = "not a url"
		}
	}

	_, err := BuildPlan(snap)
	require.Error(t, err)
	var amb *Ambiguity
	assert.False(t, errors.As(err, &amb))
	assert.Contains(t, err.Error(), "swift internal url")
}

func TestDataPath(t *testing.T) {
	assert.Equal(t, "/v1/AUTH_abc123/simplestreams/data/", DataPath("abc123"))
}

func TestAmbiguityError(t *testing.T) {
	err := &Ambiguity{Step: StepStreamEndpoint, Count: 2, Region: "RegionOne"}
	assert.Equal(t, "found 2 image-stream endpoint(s) in region RegionOne, expecting one", err.Error())
	assert.Equal(t, "step(9)", Step(9).String())
}
