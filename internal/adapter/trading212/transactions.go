package trading212

import "strings"

// TransactionItem is one entry of the transaction history.
type TransactionItem struct {
	Amount    *float64 `json:"amount"`
	DateTime  *string  `json:"dateTime"`
	Reference *string  `json:"reference"`
	Type      *string  `json:"type"`
}

// PaginatedTransactions is a page of transaction history. NextCursor and
// NextTime are filled from NextPagePath when the API omits them.
type PaginatedTransactions struct {
	Items        []TransactionItem `json:"items"`
	NextPagePath *string           `json:"nextPagePath"`
	NextCursor   *string           `json:"nextCursor"`
	NextTime     *string           `json:"nextTime"`
}

func (p *PaginatedTransactions) fillPagination() {
	if p.Items == nil {
		p.Items = []TransactionItem{}
	}
	if p.NextPagePath == nil {
		return
	}
	if p.NextCursor == nil || *p.NextCursor == "" {
		if v := extractParam(*p.NextPagePath, "cursor"); v != "" {
			p.NextCursor = &v
		}
	}
	if p.NextTime == nil || *p.NextTime == "" {
		if v := extractParam(*p.NextPagePath, "time"); v != "" {
			p.NextTime = &v
		}
	}
}

// extractParam finds key=value in a next-page path such as
// "/api/v0/history/transactions?limit=20&cursor=abc". Values are returned
// as they appear, without unescaping, so they can be passed straight back.
func extractParam(nextPagePath, key string) string {
	if nextPagePath == "" {
		return ""
	}
	for _, candidate := range strings.SplitN(nextPagePath, "?", 2) {
		for _, fragment := range strings.Split(candidate, "&") {
			k, v, ok := strings.Cut(fragment, "=")
			if ok && k == key && v != "" {
				return v
			}
		}
	}
	return ""
}
