package digest

import (
	"testing"
	"time"

	"council-digest/directory"
	"council-digest/normalize"
	"council-digest/ranker"
)

var testWindow = Window{
	Start: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
}

func rankedItem(hash, category, title string) ranker.RankedItem {
	return ranker.RankedItem{
		Item: normalize.Item{
			ContentHash: hash,
			SourceID:    "src",
			Title:       title,
			URL:         "https://example.com/" + hash,
			Category:    category,
			PublishedAt: testWindow.End.Add(-24 * time.Hour),
		},
	}
}

func mixedRanked() []ranker.RankedItem {
	return []ranker.RankedItem{
		rankedItem("h1", normalize.CategoryHearing, "Zoning hearing"),
		rankedItem("p1", normalize.CategoryPress, "Transit coverage"),
		rankedItem("h2", normalize.CategoryHearing, "Budget hearing"),
		rankedItem("v1", normalize.CategoryVideo, "Session replay"),
		rankedItem("p2", normalize.CategoryPress, "Housing op-ed"),
		rankedItem("h3", normalize.CategoryHearing, "Oversight hearing"),
		rankedItem("v2", normalize.CategoryVideo, "Live stream"),
		rankedItem("p3", normalize.CategoryPress, "Budget reaction"),
	}
}

func TestAssembleFiltersByTopic(t *testing.T) {
	a := NewAssembler()
	sub := directory.Subscriber{
		Email:  "a@example.com",
		Topics: []string{normalize.CategoryHearing},
		Active: true,
	}

	payload := a.Assemble(sub, mixedRanked(), testWindow)

	if len(payload.Items) != 3 {
		t.Fatalf("got %d items, want the 3 hearings", len(payload.Items))
	}
	want := []string{"h1", "h2", "h3"}
	for i, item := range payload.Items {
		if item.ContentHash != want[i] {
			t.Errorf("item[%d] = %s, want %s (rank order preserved)", i, item.ContentHash, want[i])
		}
	}
	if payload.TotalCandidates != 8 {
		t.Errorf("TotalCandidates = %d, want 8", payload.TotalCandidates)
	}
}

func TestAssembleFreeTextInterest(t *testing.T) {
	a := NewAssembler()
	sub := directory.Subscriber{
		Email:            "b@example.com",
		FreeTextInterest: "budget; parks",
		Active:           true,
	}

	payload := a.Assemble(sub, mixedRanked(), testWindow)

	want := map[string]bool{"h2": true, "p3": true}
	if len(payload.Items) != len(want) {
		t.Fatalf("got %d items, want %d budget matches", len(payload.Items), len(want))
	}
	for _, item := range payload.Items {
		if !want[item.ContentHash] {
			t.Errorf("unexpected item %s", item.ContentHash)
		}
	}
}

func TestAssembleTopicOrInterestUnion(t *testing.T) {
	a := NewAssembler()
	sub := directory.Subscriber{
		Email:            "c@example.com",
		Topics:           []string{normalize.CategoryVideo},
		FreeTextInterest: "zoning",
		Active:           true,
	}

	payload := a.Assemble(sub, mixedRanked(), testWindow)

	want := map[string]bool{"v1": true, "v2": true, "h1": true}
	got := make(map[string]bool)
	for _, item := range payload.Items {
		got[item.ContentHash] = true
	}
	for hash := range want {
		if !got[hash] {
			t.Errorf("missing %s: topic and interest matches should union", hash)
		}
	}
	if len(got) != len(want) {
		t.Errorf("got %d items, want %d", len(got), len(want))
	}
}

func TestAssembleFallbackWithoutCriteria(t *testing.T) {
	a := NewAssembler(WithMaxItems(4))
	sub := directory.Subscriber{Email: "d@example.com", Active: true}

	payload := a.Assemble(sub, mixedRanked(), testWindow)

	if len(payload.Items) != 4 {
		t.Fatalf("got %d items, want top 4 overall", len(payload.Items))
	}
	want := []string{"h1", "p1", "h2", "v1"}
	for i, item := range payload.Items {
		if item.ContentHash != want[i] {
			t.Errorf("item[%d] = %s, want %s", i, item.ContentHash, want[i])
		}
	}
}

func TestAssembleCapPreservesRankOrder(t *testing.T) {
	a := NewAssembler(WithMaxItems(2))
	sub := directory.Subscriber{
		Email:  "e@example.com",
		Topics: []string{normalize.CategoryHearing},
		Active: true,
	}

	payload := a.Assemble(sub, mixedRanked(), testWindow)

	if len(payload.Items) != 2 {
		t.Fatalf("got %d items, want cap of 2", len(payload.Items))
	}
	if payload.Items[0].ContentHash != "h1" || payload.Items[1].ContentHash != "h2" {
		t.Errorf("truncation must keep the top-ranked matches, got %s, %s",
			payload.Items[0].ContentHash, payload.Items[1].ContentHash)
	}
}

func TestAssembleGroupsFollowConfiguredOrder(t *testing.T) {
	a := NewAssembler(WithCategoryOrder([]string{
		normalize.CategoryVideo,
		normalize.CategoryHearing,
		normalize.CategoryPress,
	}))
	sub := directory.Subscriber{Email: "f@example.com", Active: true}

	payload := a.Assemble(sub, mixedRanked(), testWindow)

	wantOrder := []string{normalize.CategoryVideo, normalize.CategoryHearing, normalize.CategoryPress}
	if len(payload.Groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(payload.Groups))
	}
	for i, group := range payload.Groups {
		if group.Category != wantOrder[i] {
			t.Errorf("group[%d] = %s, want %s", i, group.Category, wantOrder[i])
		}
	}

	// Rank order inside each group.
	hearings := payload.Groups[1].Items
	if hearings[0].ContentHash != "h1" || hearings[1].ContentHash != "h2" || hearings[2].ContentHash != "h3" {
		t.Error("rank order not preserved within the hearings group")
	}
}

func TestAssembleDeterministic(t *testing.T) {
	a := NewAssembler()
	sub := directory.Subscriber{
		Email:            "g@example.com",
		Topics:           []string{normalize.CategoryPress},
		FreeTextInterest: "budget",
		Active:           true,
	}

	first := a.Assemble(sub, mixedRanked(), testWindow)
	for run := 0; run < 5; run++ {
		again := a.Assemble(sub, mixedRanked(), testWindow)
		if len(again.Items) != len(first.Items) {
			t.Fatalf("run %d: item count changed", run)
		}
		for i := range first.Items {
			if again.Items[i].ContentHash != first.Items[i].ContentHash {
				t.Fatalf("run %d: item order changed", run)
			}
		}
	}
}

func TestAssembleHighlights(t *testing.T) {
	a := NewAssembler(WithMaxHighlights(2))
	sub := directory.Subscriber{Email: "i@example.com", Active: true}

	payload := a.Assemble(sub, mixedRanked(), testWindow)

	if len(payload.Highlights) != 2 {
		t.Fatalf("got %d highlights, want 2", len(payload.Highlights))
	}
	if payload.Highlights[0].ContentHash != "h1" || payload.Highlights[1].ContentHash != "p1" {
		t.Errorf("highlights = %s, %s, want the top-ranked selections",
			payload.Highlights[0].ContentHash, payload.Highlights[1].ContentHash)
	}

	// Fewer selections than the cap.
	short := a.Assemble(directory.Subscriber{
		Email:  "j@example.com",
		Topics: []string{normalize.CategoryVideo},
		Active: true,
	}, mixedRanked(), testWindow)
	if len(short.Highlights) != 2 {
		t.Errorf("got %d highlights for 2 matching items", len(short.Highlights))
	}
}

func TestAssembleWindowEcho(t *testing.T) {
	a := NewAssembler()
	payload := a.Assemble(directory.Subscriber{Email: "h@example.com"}, mixedRanked(), testWindow)

	if !payload.Window.Start.Equal(testWindow.Start) || !payload.Window.End.Equal(testWindow.End) {
		t.Error("payload must carry the window it was assembled for")
	}
}
