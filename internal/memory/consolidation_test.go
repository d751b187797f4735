package memory

import (
	"testing"
	"time"
)

func TestPairSimilarityWeighsSharedTopicsAndEntities(t *testing.T) {
	now := time.Now()
	a := baseTestMemory("discussing the roadmap for project phoenix")
	a.Metadata.Topics = []string{"roadmap", "phoenix"}
	a.Metadata.Entities = []Entity{{Name: "Phoenix", Type: EntityProduct}}
	a.CreatedAt = now

	b := baseTestMemory("more roadmap details for phoenix release")
	b.Metadata.Topics = []string{"roadmap", "phoenix"}
	b.Metadata.Entities = []Entity{{Name: "Phoenix", Type: EntityProduct}}
	b.CreatedAt = now.Add(time.Minute)

	unrelated := baseTestMemory("a completely different note about lunch")
	unrelated.CreatedAt = now.Add(30 * 24 * time.Hour)

	if pairSimilarity(a, b) <= pairSimilarity(a, unrelated) {
		t.Fatalf("expected topically/temporally close memories to be more similar")
	}
}

func TestGroupSimilarClustersAboveThreshold(t *testing.T) {
	now := time.Now()
	shared := []string{"roadmap", "phoenix"}

	a := baseTestMemory("roadmap notes about phoenix milestone one")
	a.Metadata.Topics = shared
	a.CreatedAt = now

	b := baseTestMemory("roadmap notes about phoenix milestone two")
	b.Metadata.Topics = shared
	b.CreatedAt = now.Add(time.Minute)

	c := baseTestMemory("entirely unrelated grocery list")
	c.CreatedAt = now.Add(60 * 24 * time.Hour)

	groups := groupSimilar([]Memory{a, b, c}, 0.3)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups (a+b merged, c alone), got %d", len(groups))
	}
}

func TestChooseStrategySingleMemberPreserves(t *testing.T) {
	now := time.Now()
	m := baseTestMemory("solo memory")
	if got := chooseStrategy([]Memory{m}, now); got != StrategyPreserve {
		t.Fatalf("expected single-member group to preserve, got %s", got)
	}
}

func TestChooseStrategyHighImportancePreserves(t *testing.T) {
	now := time.Now()
	a := baseTestMemory("important finding one")
	a.ImportanceScore = 0.9
	b := baseTestMemory("important finding two")
	b.ImportanceScore = 0.85

	if got := chooseStrategy([]Memory{a, b}, now); got != StrategyPreserve {
		t.Fatalf("expected high average importance to preserve, got %s", got)
	}
}

func TestChooseStrategyOldLowImportanceArchives(t *testing.T) {
	now := time.Now()
	old := now.Add(-60 * 24 * time.Hour)
	a := baseTestMemory("stale note one")
	a.ImportanceScore = 0.1
	a.CreatedAt = old
	b := baseTestMemory("stale note two")
	b.ImportanceScore = 0.15
	b.CreatedAt = old

	if got := chooseStrategy([]Memory{a, b}, now); got != StrategyArchive {
		t.Fatalf("expected old, low-importance group to archive, got %s", got)
	}
}

func TestChooseStrategyNearDuplicatesDeduplicate(t *testing.T) {
	now := time.Now()
	a := baseTestMemory("the meeting is rescheduled to friday at noon")
	b := baseTestMemory("the meeting is rescheduled to friday at noon")

	if got := chooseStrategy([]Memory{a, b}, now); got != StrategyDeduplicate {
		t.Fatalf("expected near-identical content to deduplicate, got %s", got)
	}
}

func TestChooseStrategyNearDuplicatesDifferingByPunctuationDeduplicate(t *testing.T) {
	now := time.Now()
	a := baseTestMemory("I love Python")
	b := baseTestMemory("I love Python.")

	if got := chooseStrategy([]Memory{a, b}, now); got != StrategyDeduplicate {
		t.Fatalf("expected punctuation-only variants to deduplicate via edit distance, got %s", got)
	}
}

func TestApplyStrategyDeduplicateKeepsHighestImportance(t *testing.T) {
	now := time.Now()
	a := baseTestMemory("dup")
	a.ID = "a"
	a.ImportanceScore = 0.3
	b := baseTestMemory("dup")
	b.ID = "b"
	b.ImportanceScore = 0.9

	kept, deleted := applyStrategy(StrategyDeduplicate, []Memory{a, b}, now)
	if len(kept) != 1 || kept[0].ID != "b" {
		t.Fatalf("expected the higher-importance duplicate to survive, got %+v", kept)
	}
	if len(deleted) != 1 || deleted[0].ID != "a" {
		t.Fatalf("expected the lower-importance duplicate to be deleted, got %+v", deleted)
	}
}

func TestApplyStrategyMergeProducesSingleConsolidatedRecord(t *testing.T) {
	now := time.Now()
	a := baseTestMemory("first half of the conversation")
	a.ImportanceScore = 0.4
	b := baseTestMemory("second half of the conversation")
	b.ImportanceScore = 0.6

	kept, deleted := applyStrategy(StrategyMerge, []Memory{a, b}, now)
	if len(kept) != 1 {
		t.Fatalf("expected merge to produce a single record, got %d", len(kept))
	}
	if kept[0].Metadata.Source != SourceConsolidation {
		t.Fatalf("expected merged record to carry SourceConsolidation")
	}
	if len(deleted) != 2 {
		t.Fatalf("expected both originals marked for deletion, got %d", len(deleted))
	}
}

func TestReflectEmitsThemeForRecurringTopic(t *testing.T) {
	now := time.Now()
	var batch []Memory
	for i := 0; i < 4; i++ {
		m := baseTestMemory("note about cooking")
		m.Metadata.Topics = []string{"cooking"}
		batch = append(batch, m)
	}

	insights := reflect("agent-1", batch, now)
	foundTheme := false
	for _, in := range insights {
		if in.Type == InsightTheme {
			foundTheme = true
		}
	}
	if !foundTheme {
		t.Fatalf("expected a recurring topic to produce a Theme insight")
	}
}

func TestReflectEmitsPreferenceForStrongSentiment(t *testing.T) {
	now := time.Now()
	var batch []Memory
	for i := 0; i < 3; i++ {
		m := baseTestMemory("loves hiking in the mountains")
		m.Metadata.Topics = []string{"hiking"}
		m.Metadata.Sentiment = &Sentiment{Polarity: 0.9, Magnitude: 0.9}
		batch = append(batch, m)
	}

	insights := reflect("agent-1", batch, now)
	found := false
	for _, in := range insights {
		if in.Type == InsightPreference {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected strong positive sentiment on a recurring topic to produce a Preference insight")
	}
}
