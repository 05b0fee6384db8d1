package flickr

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/quantmind-br/photofeed/internal/domain"
)

const statOK = "ok"

// flexInt accepts both 42 and "42"; the REST API is inconsistent about
// numeric fields like total and pages
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		// unparseable counters are treated as unknown
		*n = 0
		return nil
	}
	*n = flexInt(v)
	return nil
}

type status struct {
	Stat    string `json:"stat"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s status) err(method string) error {
	if s.Stat == statOK {
		return nil
	}
	return domain.NewAPIError(method, s.Code, s.Message)
}

// Cacheable reports whether body is a successful API envelope. Failures
// arrive with HTTP 200 and must not be served from cache later.
func Cacheable(body []byte) bool {
	var s status
	if err := json.Unmarshal(body, &s); err != nil {
		return false
	}
	return s.Stat == statOK
}

type photosResponse struct {
	status
	Photos *photosPage `json:"photos"`
}

type photosPage struct {
	Page    flexInt     `json:"page"`
	Pages   flexInt     `json:"pages"`
	PerPage flexInt     `json:"perpage"`
	Total   flexInt     `json:"total"`
	Photo   []photoItem `json:"photo"`
}

type photoItem struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Secret string `json:"secret"`
	Server string `json:"server"`
	Title  string `json:"title"`
	URLS   string `json:"url_s"`
	// the live API answers with the compact names, older fixtures use the
	// underscored ones
	OwnerName    string `json:"ownername"`
	OwnerNameAlt string `json:"owner_name"`
	DateTaken    string `json:"datetaken"`
	DateTakenAlt string `json:"date_taken"`
}

type infoResponse struct {
	status
	Photo *infoPhoto `json:"photo"`
}

type content struct {
	Content string `json:"_content"`
}

type infoPhoto struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
	Server string `json:"server"`
	Owner  *struct {
		NSID     string `json:"nsid"`
		Username string `json:"username"`
	} `json:"owner"`
	Title       *content `json:"title"`
	Description *content `json:"description"`
	Dates       *struct {
		Taken string `json:"taken"`
	} `json:"dates"`
}

func decodePhotos(method string, body []byte, requestedPage int) (*domain.Page, error) {
	var resp photosResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewAPIError(method, -1, "malformed response: "+err.Error())
	}
	if err := resp.err(method); err != nil {
		return nil, err
	}
	if resp.Photos == nil {
		return nil, domain.NewAPIError(method, -1, "")
	}

	page := &domain.Page{
		Items:      make([]domain.PhotoSummary, 0, len(resp.Photos.Photo)),
		PageNumber: int(resp.Photos.Page),
		TotalPages: int(resp.Photos.Pages),
		Total:      int(resp.Photos.Total),
	}
	if page.PageNumber <= 0 {
		page.PageNumber = requestedPage
	}
	// empty results report pages=0; a served page always counts
	page.TotalPages = max(page.TotalPages, page.PageNumber, 1)
	for _, p := range resp.Photos.Photo {
		page.Items = append(page.Items, p.toSummary())
	}
	return page, nil
}

func (p photoItem) toSummary() domain.PhotoSummary {
	s := domain.PhotoSummary{
		ID:           p.ID,
		Title:        orDefault(p.Title, untitled),
		OwnerName:    firstNonBlank(p.OwnerName, p.OwnerNameAlt, p.Owner, unknownOwner),
		DateTaken:    firstNonBlank(p.DateTaken, p.DateTakenAlt),
		ThumbnailURL: p.URLS,
		Secret:       p.Secret,
		Server:       p.Server,
	}
	s.ThumbnailURL = s.Thumbnail()
	return s
}

func decodeInfo(body []byte) (*domain.PhotoDetail, error) {
	var resp infoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewAPIError(methodGetInfo, -1, "malformed response: "+err.Error())
	}
	if err := resp.err(methodGetInfo); err != nil {
		return nil, err
	}
	if resp.Photo == nil {
		return nil, domain.NewAPIError(methodGetInfo, -1, "")
	}

	p := resp.Photo
	d := &domain.PhotoDetail{
		ID:            p.ID,
		Title:         untitled,
		OwnerName:     unknownOwner,
		LargeImageURL: largeImageURL(p.Server, p.ID, p.Secret),
	}
	if p.Title != nil {
		d.Title = orDefault(p.Title.Content, untitled)
	}
	if p.Owner != nil {
		d.OwnerName = firstNonBlank(p.Owner.Username, p.Owner.NSID, unknownOwner)
	}
	if p.Description != nil {
		d.Description = strings.TrimSpace(p.Description.Content)
	}
	if p.Dates != nil {
		d.DateTaken = p.Dates.Taken
	}
	return d, nil
}

const (
	untitled     = "Untitled"
	unknownOwner = "Unknown"
)

func largeImageURL(server, id, secret string) string {
	return domain.StaticPhotoHost + "/" + server + "/" + id + "_" + secret + "_z.jpg"
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
