package companion

// Store resolves the AI companions a user can address by receiver id. The hub uses it to
// decide whether an incoming chat needs a generated reply.
type Store interface {
	List() []Profile
	FindByID(id string) (Profile, bool)
}

// MemoryStore 是进程内的只读角色表，启动时装载，之后不再变化
type MemoryStore struct {
	order []string
	byID  map[string]Profile
}

// NewMemoryStore 按给定顺序装载角色；重复 id 以后出现的为准
func NewMemoryStore(items []Profile) *MemoryStore {
	s := &MemoryStore{byID: make(map[string]Profile, len(items))}
	for _, item := range items {
		if _, seen := s.byID[item.ID]; !seen {
			s.order = append(s.order, item.ID)
		}
		s.byID[item.ID] = item
	}
	return s
}

// List returns a copy of the roster in load order, as rendered by the companion picker.
func (s *MemoryStore) List() []Profile {
	out := make([]Profile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// FindByID reports whether id names a companion. Receiver ids of human users miss here.
func (s *MemoryStore) FindByID(id string) (Profile, bool) {
	profile, ok := s.byID[id]
	return profile, ok
}
