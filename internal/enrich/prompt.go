package enrich

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/bankrot-cli/internal/model"
)

const systemPrompt = `Ты эксперт по извлечению данных из объявлений о продаже прав требования на торгах по банкротству.
По тексту объявления и исходному имени должника определи должника, к которому предъявлено требование.
Верни только JSON без пояснений в формате:
{"normalized_name": "<полное наименование с организационно-правовой формой или null>", "inn": "<ИНН из 10 или 12 цифр или null>", "confidence": <число от 0 до 1>}
Если должника определить нельзя, верни normalized_name = null и укажи confidence.
Не придумывай ИНН, которого нет в тексте.`

// maxContextRunes bounds the announcement text sent to the model.
const maxContextRunes = 4000

// buildPrompt renders the user message for one request.
func buildPrompt(req Request) string {
	ctx := req.CaseContext
	if utf8.RuneCountInString(ctx) > maxContextRunes {
		ctx = string([]rune(ctx)[:maxContextRunes])
	}
	var b strings.Builder
	b.WriteString("Исходное имя должника: ")
	if req.RawName == "" {
		b.WriteString("(не указано)")
	} else {
		b.WriteString(req.RawName)
	}
	b.WriteString("\n\nТекст объявления:\n")
	b.WriteString(ctx)
	return b.String()
}

var fenceRx = regexp.MustCompile("(?i)^```(?:json)?\\s*|\\s*```$")

// firstJSONBlock extracts the first balanced JSON object or array from
// model output. Code fences are stripped first. Text without a bracket is
// returned trimmed; an unbalanced block is returned from its opening
// bracket to the end.
func firstJSONBlock(text string) string {
	text = fenceRx.ReplaceAllString(strings.TrimSpace(text), "")
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return strings.TrimSpace(text)
	}
	opening := text[start]
	closing := byte('}')
	if opening == '[' {
		closing = ']'
	}

	depth := 0
	inString, escape := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case opening:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return strings.TrimSpace(text[start : i+1])
			}
		}
	}
	return strings.TrimSpace(text[start:])
}

// MalformedResponseError is returned when model output does not match the
// expected schema.
type MalformedResponseError struct {
	Reason string
	Raw    string
}

func (e *MalformedResponseError) Error() string {
	return "enrich: malformed response: " + e.Reason
}

type wireResponse struct {
	NormalizedName *string         `json:"normalized_name"`
	INN            json.RawMessage `json:"inn"`
	Confidence     *float64        `json:"confidence"`
}

// parseResponse validates raw model output into a NormalizedDebtor. A null
// or empty name is a valid no-match result.
func parseResponse(raw string) (model.NormalizedDebtor, error) {
	block := firstJSONBlock(raw)
	if !strings.HasPrefix(block, "{") {
		return model.NormalizedDebtor{}, &MalformedResponseError{Reason: "no json object", Raw: raw}
	}

	var wr wireResponse
	dec := json.NewDecoder(bytes.NewReader([]byte(block)))
	if err := dec.Decode(&wr); err != nil {
		return model.NormalizedDebtor{}, &MalformedResponseError{Reason: "decode: " + err.Error(), Raw: raw}
	}
	if wr.Confidence == nil {
		return model.NormalizedDebtor{}, &MalformedResponseError{Reason: "missing confidence", Raw: raw}
	}
	if *wr.Confidence < 0 || *wr.Confidence > 1 {
		return model.NormalizedDebtor{}, &MalformedResponseError{Reason: "confidence out of range", Raw: raw}
	}

	out := model.NormalizedDebtor{Confidence: *wr.Confidence}
	if wr.NormalizedName != nil {
		out.Name = strings.Join(strings.Fields(*wr.NormalizedName), " ")
	}
	out.Matched = out.Name != ""
	out.INN = rawINN(wr.INN)
	return out, nil
}

// rawINN accepts the INN as a JSON string or number and keeps it only when
// it has a valid length.
func rawINN(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	return model.NormalizeINN(s)
}
