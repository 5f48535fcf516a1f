package domain

import "time"

// Sentiment tags a message payload with the sign of the pnl figure it
// reports. Platform renderers map it to colors and emoji.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// PayloadLine is one ordered label/value pair in a message body.
type PayloadLine struct {
	Label string
	Value string
}

// MessagePayload is the destination-agnostic form of one alert. The
// formatter produces it; platform renderers turn it into Discord markdown or
// Telegram HTML without changing its content.
type MessagePayload struct {
	Title     string
	Headline  string // symbol, side and leverage summary line
	Sentiment Sentiment
	Lines     []PayloadLine
	Note      string // optional trailing caveat, e.g. open never observed
	Timestamp time.Time
}
