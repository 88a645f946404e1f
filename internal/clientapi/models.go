package clientapi

// ModelCreated is the fixed creation timestamp reported for every model.
const ModelCreated = 1677610602

// ModelOwner is reported as owned_by for every model.
const ModelOwner = "llmbridge"

// ModelList is the OpenAI-style model listing.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// NewModelList renders model ids as a listing.
func NewModelList(ids []string) *ModelList {
	list := &ModelList{Object: "list", Data: make([]Model, 0, len(ids))}
	for _, id := range ids {
		list.Data = append(list.Data, Model{ID: id, Object: "model", Created: ModelCreated, OwnedBy: ModelOwner})
	}
	return list
}
