package companion

import "testing"

func TestMemoryStoreFindByID(t *testing.T) {
	store := NewMemoryStore(Seed())

	got, ok := store.FindByID("ai-sleep-coach")
	if !ok {
		t.Fatal("expected seeded companion to be found")
	}
	if got.Name != "Luna" {
		t.Fatalf("unexpected companion: %s", got.Name)
	}
	if _, ok := store.FindByID("u1"); ok {
		t.Fatal("did not expect a regular user id to resolve to a companion")
	}
}

func TestMemoryStoreListIsCopy(t *testing.T) {
	store := NewMemoryStore(Seed())
	list := store.List()
	list[0].Name = "changed"

	if store.List()[0].Name == "changed" {
		t.Fatal("List must not expose internal slice")
	}
}

func TestMemoryStoreKeepsLoadOrderAndLastDuplicate(t *testing.T) {
	store := NewMemoryStore([]Profile{
		{ID: "b", Name: "first b"},
		{ID: "a", Name: "a"},
		{ID: "b", Name: "second b"},
	})

	list := store.List()
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "a" {
		t.Fatalf("unexpected roster order: %#v", list)
	}
	if got, _ := store.FindByID("b"); got.Name != "second b" {
		t.Fatalf("expected the later duplicate to win, got %q", got.Name)
	}
}
