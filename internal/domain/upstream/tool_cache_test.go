package upstream

import "testing"

func TestToolCache_QualifiesNames(t *testing.T) {
	c := NewToolCache()
	c.SetToolsForUpstream("srv", []DiscoveredTool{{Name: "fetch", Description: "fetches things"}})

	tool, ok := c.GetTool("srv__fetch")
	if !ok {
		t.Fatalf("expected srv__fetch to be found")
	}
	if tool.UpstreamID != "srv" || tool.Name != "fetch" {
		t.Errorf("got %+v", tool)
	}
}

func TestToolCache_NamespacingPreventsCollisions(t *testing.T) {
	c := NewToolCache()
	c.SetToolsForUpstream("a", []DiscoveredTool{{Name: "fetch"}})
	c.SetToolsForUpstream("b", []DiscoveredTool{{Name: "fetch"}})

	if c.Count() != 2 {
		t.Fatalf("expected 2 distinct qualified tools, got %d", c.Count())
	}
	if _, ok := c.GetTool("a__fetch"); !ok {
		t.Errorf("a__fetch missing")
	}
	if _, ok := c.GetTool("b__fetch"); !ok {
		t.Errorf("b__fetch missing")
	}
}

func TestToolCache_RemoveUpstream(t *testing.T) {
	c := NewToolCache()
	c.SetToolsForUpstream("srv", []DiscoveredTool{{Name: "fetch"}, {Name: "write"}})
	c.RemoveUpstream("srv")

	if c.Count() != 0 {
		t.Fatalf("expected 0 tools after removal, got %d", c.Count())
	}
	if _, ok := c.GetTool("srv__fetch"); ok {
		t.Errorf("expected srv__fetch to be gone")
	}
}

func TestToolCache_SetToolsForUpstream_Replaces(t *testing.T) {
	c := NewToolCache()
	c.SetToolsForUpstream("srv", []DiscoveredTool{{Name: "old"}})
	c.SetToolsForUpstream("srv", []DiscoveredTool{{Name: "new"}})

	if _, ok := c.GetTool("srv__old"); ok {
		t.Errorf("expected old tool to be replaced")
	}
	if _, ok := c.GetTool("srv__new"); !ok {
		t.Errorf("expected new tool to be present")
	}
}

func TestToolCache_EnforcesPerUpstreamCap(t *testing.T) {
	c := NewToolCache()
	tools := make([]DiscoveredTool, MaxToolsPerUpstream+10)
	for i := range tools {
		tools[i] = DiscoveredTool{Name: string(rune('a' + i%26)) + "_tool"}
	}
	c.SetToolsForUpstream("srv", tools)

	if got := len(c.GetToolsByUpstream("srv")); got > MaxToolsPerUpstream {
		t.Errorf("expected at most %d tools, got %d", MaxToolsPerUpstream, got)
	}
}
