package uploads

import "time"

// Document is a stored upload.
type Document struct {
	ID          int64     `json:"id"`
	DealerID    int64     `json:"dealerId"`
	UserID      int64     `json:"userId"`
	Category    string    `json:"category"`
	ObjectKey   string    `json:"objectKey"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// File is an upload as read from the request.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Response is the JSON body of every upload endpoint, success or not.
type Response struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FileURL  string `json:"fileUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
	FileType string `json:"fileType,omitempty"`
}
