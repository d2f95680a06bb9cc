package optimize

// usage records the resource names a content stream refers to
type usage struct {
	fonts    map[string]bool
	xobjects map[string]bool
}

func newUsage() usage {
	return usage{fonts: map[string]bool{}, xobjects: map[string]bool{}}
}

func (u usage) merge(other usage) {
	for name := range other.fonts {
		u.fonts[name] = true
	}
	for name := range other.xobjects {
		u.xobjects[name] = true
	}
}

// scanContent collects the font names selected by Tf and the external
// objects painted by Do
func scanContent(data []byte) usage {
	u := newUsage()
	lexer := newContentLexer(data)

	var operands []token
	for {
		tok := lexer.next()
		switch tok.Type {
		case tokenEOF:
			return u
		case tokenOperator:
			switch tok.Value {
			case "Tf":
				// font size follows the name: /F1 12 Tf
				if len(operands) >= 2 && operands[len(operands)-2].Type == tokenName {
					u.fonts[operands[len(operands)-2].Value] = true
				}
			case "Do":
				if len(operands) >= 1 && operands[len(operands)-1].Type == tokenName {
					u.xobjects[operands[len(operands)-1].Value] = true
				}
			}
			operands = operands[:0]
		default:
			operands = append(operands, tok)
		}
	}
}
