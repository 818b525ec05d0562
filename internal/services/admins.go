package services

// AdminList is the Admins capability backed by a fixed set of ids.
type AdminList struct {
	ids map[string]struct{}
}

func NewAdminList(ids []string) *AdminList {
	a := &AdminList{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id != "" {
			a.ids[id] = struct{}{}
		}
	}
	return a
}

func (a *AdminList) IsAdmin(userID string) bool {
	_, ok := a.ids[userID]
	return ok
}
