package access

import (
	"testing"

	"igstore/collections"
)

func TestVerifyAccess(t *testing.T) {
	auth := ownerAuthorizer{}
	item := &collections.GalleryItem{ID: "item", User: collections.UserRef("owner")}

	cases := []struct {
		name     string
		userID   string
		ops      []string
		expected bool
	}{
		{
			name:     "owner can do all",
			userID:   "owner",
			ops:      []string{opRead, opWrite, opDelete},
			expected: true,
		},
		{
			name:     "anyone can read",
			userID:   "stranger",
			ops:      []string{opRead},
			expected: true,
		},
		{
			name:     "anonymous can read",
			userID:   "",
			ops:      []string{opRead},
			expected: true,
		},
		{
			name:     "others cannot mutate",
			userID:   "stranger",
			ops:      []string{opWrite, opDelete},
			expected: false,
		},
		{
			name:     "anonymous cannot mutate",
			userID:   "",
			ops:      []string{opWrite, opDelete},
			expected: false,
		},
		{
			name:     "unknown operation",
			userID:   "owner",
			ops:      []string{"CHANGEUSERS"},
			expected: false,
		},
	}

	for _, c := range cases {
		for _, op := range c.ops {
			if got := auth.verifyAccess(c.userID, item.UserID(), op); got != c.expected {
				t.Errorf("%s: verifyAccess(%q, %q) = %v, want %v", c.name, c.userID, op, got, c.expected)
			}
		}
	}
}

func TestAuthorizer(t *testing.T) {
	auth := OwnerOnly()
	item := &collections.GalleryItem{ID: "item", User: collections.UserRef("owner")}

	if !auth.CanEdit("owner", item) || !auth.CanDelete("owner", item) {
		t.Error("owner should be able to edit and delete their item")
	}
	if auth.CanEdit("other", item) || auth.CanDelete("other", item) {
		t.Error("other users should not be able to mutate the item")
	}
	if !auth.CanRead("", item) {
		t.Error("galleries should be publicly readable")
	}
	if auth.CanRead("owner", nil) {
		t.Error("a missing item should not be readable")
	}
	if !auth.CanEditProfile("owner", "owner") || auth.CanEditProfile("other", "owner") {
		t.Error("only the owner may edit a profile")
	}
}
