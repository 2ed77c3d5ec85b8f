package transport

// AddLinkRequest adds one entry to the playlist. The input may be a raw
// video id or any link containing one.
type AddLinkRequest struct {
	Link string `json:"link" binding:"required,videolink"`
}

// RemoveLinkRequest removes a playlist entry by its store key.
type RemoveLinkRequest struct {
	Key string `uri:"key" binding:"required,linkkey"`
}
