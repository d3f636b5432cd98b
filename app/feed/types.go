package feed

// RawItem is one fetched feed entry prior to extraction. Items are not
// required to have distinct links; dedup happens at insertion time.
type RawItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Date        string `json:"date"`  // opaque source timestamp, kept as published
	Audio       string `json:"audio"` // first audio enclosure URI, if any
}

// ExtractedArticle is the cleaned article content produced for one raw item.
type ExtractedArticle struct {
	Title     string
	Text      string
	AudioURI  string
	SourceURI string
}

// RefreshResult reports the outcome of a single feed refresh.
type RefreshResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// ImportResult reports the outcome of an article import batch.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// DeleteResult reports how many feeds and cascaded articles were removed.
type DeleteResult struct {
	Feeds    int `json:"feeds"`
	Articles int `json:"articles"`
}
