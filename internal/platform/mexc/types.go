package mexc

// apiResponse is the common envelope of the MEXC contract API.
type apiResponse struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// openPosition is one row of /api/v1/private/position/open_positions.
type openPosition struct {
	Symbol       string  `json:"symbol"`
	PositionType int     `json:"positionType"` // 1 long, 2 short
	HoldVol      float64 `json:"holdVol"`
	HoldAvgPrice float64 `json:"holdAvgPrice"`
	Leverage     float64 `json:"leverage"`
	UpdateTime   int64   `json:"updateTime"` // unix milliseconds
}

type openPositionsResponse struct {
	apiResponse
	Data []openPosition `json:"data"`
}

// tickerData is the payload of /api/v1/contract/ticker for one symbol.
type tickerData struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"lastPrice"`
	FairPrice float64 `json:"fairPrice"`
}

type tickerResponse struct {
	apiResponse
	Data tickerData `json:"data"`
}

// API error codes that map onto the domain error taxonomy.
const (
	codeInvalidAPIKey    = 401
	codeInvalidSignature = 602
	codeContractNotExist = 1002
)
