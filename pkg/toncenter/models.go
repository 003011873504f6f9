package toncenter

import "encoding/json"

// Page is one page of account identifiers
type Page struct {
	Identifiers []string
	HasNextPage bool
	// NextCursor is empty when the upstream returned no end cursor
	NextCursor string
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code       string          `json:"code"`
		RetryAfter json.RawMessage `json:"retryAfter,omitempty"`
	} `json:"extensions"`
}

type pageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

type accountEdge struct {
	Node struct {
		Address string `json:"address"`
	} `json:"node"`
}

type accountsConnection struct {
	Edges    []accountEdge `json:"edges"`
	PageInfo pageInfo      `json:"pageInfo"`
}

type accountsResponse struct {
	Data *struct {
		Accounts *accountsConnection `json:"accounts"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}
