package forms

import "strings"

// CreateFormInput carries one form creation request. Sharing settings are
// deliberately absent: new forms always start private and are opened up
// afterwards through the sharing API.
type CreateFormInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// UpdateFormInput is a partial update. Nil fields are left untouched;
// sharing scope and default permission are owned by the sharing API and
// cannot be changed here.
type UpdateFormInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
}

// IsEmpty reports whether the update carries no fields at all.
func (in UpdateFormInput) IsEmpty() bool {
	return in.Title == nil && in.Description == nil && in.Category == nil
}

// ListFilter narrows a form listing. An empty Categories slice means all
// categories.
type ListFilter struct {
	Categories []string
}

func normalizeCategory(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
