package core

import (
	"context"
	"fmt"
)

// StatusCount is one slice of a distribution chart.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// ProjectProgress is one bar of the progress-per-project chart.
type ProjectProgress struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Progress int    `json:"progress"`
	Status   string `json:"status"`
}

// Dashboard holds the aggregates behind the overview charts.
type Dashboard struct {
	Projects        int                `json:"projects"`
	ProjectStatus   []StatusCount      `json:"project_status"`
	ProjectProgress []ProjectProgress  `json:"project_progress"`
	TestPacks       int                `json:"test_packs"`
	TestPackEstado  []StatusCount      `json:"test_pack_estado"`
	Tags            int                `json:"tags"`
	TagEstado       []StatusCount      `json:"tag_estado"`
	TagsReleasedPct int                `json:"tags_released_pct"`
	RecentActivity  []ActivityLogEntry `json:"recent_activity"`
}

// Dashboard computes chart aggregates from the current records.
func (s *Service) Dashboard(ctx context.Context, sess *Session) (*Dashboard, error) {
	if err := s.checkRead(sess); err != nil {
		return nil, err
	}

	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	packs, err := s.store.ListTestPacks(ctx, TestPackFilter{})
	if err != nil {
		return nil, fmt.Errorf("list test packs: %w", err)
	}
	tags, err := s.store.ListTags(ctx, TagFilter{})
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	recent, err := s.store.ListActivity(ctx, ActivityFilter{Limit: 10})
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	return buildDashboard(projects, packs, tags, recent), nil
}

func buildDashboard(projects []Project, packs []TestPack, tags []Tag, recent []ActivityLogEntry) *Dashboard {
	d := &Dashboard{
		Projects:       len(projects),
		TestPacks:      len(packs),
		Tags:           len(tags),
		RecentActivity: recent,
	}

	projectCounts := map[ProjectStatus]int{}
	for _, p := range projects {
		projectCounts[p.Status]++
		d.ProjectProgress = append(d.ProjectProgress, ProjectProgress{
			ID: p.ID, Name: p.Name, Progress: ClampPercent(p.Progress), Status: string(p.Status),
		})
	}
	for _, st := range []ProjectStatus{ProjectComplete, ProjectInProgress, ProjectDelayed} {
		d.ProjectStatus = append(d.ProjectStatus, StatusCount{Status: string(st), Count: projectCounts[st]})
	}

	packCounts := map[Estado]int{}
	for _, p := range packs {
		packCounts[p.Estado]++
	}
	tagCounts := map[Estado]int{}
	for _, t := range tags {
		tagCounts[t.Estado]++
	}
	for _, e := range []Estado{EstadoPendiente, EstadoLiberado} {
		d.TestPackEstado = append(d.TestPackEstado, StatusCount{Status: string(e), Count: packCounts[e]})
		d.TagEstado = append(d.TagEstado, StatusCount{Status: string(e), Count: tagCounts[e]})
	}
	if len(tags) > 0 {
		d.TagsReleasedPct = tagCounts[EstadoLiberado] * 100 / len(tags)
	}
	return d
}
