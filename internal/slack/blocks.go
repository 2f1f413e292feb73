package slack

// Block is one Slack Block Kit layout block.
type Block struct {
	Type     string    `json:"type"`
	Text     *Text     `json:"text,omitempty"`
	Elements []Element `json:"elements,omitempty"`
}

type Text struct {
	Type string `json:"type"` // "plain_text" or "mrkdwn"
	Text string `json:"text"`
}

// Element is an interactive element inside an "actions" block.
type Element struct {
	Type string `json:"type"`
	Text *Text  `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

func Header(text string) Block {
	return Block{Type: "header", Text: &Text{Type: "plain_text", Text: text}}
}

func Markdown(text string) Block {
	return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: text}}
}

func LinkButton(label, url string) Block {
	return Block{
		Type: "actions",
		Elements: []Element{{
			Type: "button",
			Text: &Text{Type: "plain_text", Text: label},
			URL:  url,
		}},
	}
}
