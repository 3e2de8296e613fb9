package dataset

// InferColumn builds a typed column from raw text cells. Tokens in the NA set
// are missing. If every present token is an int64 the column is integer;
// else if every one is a number it is float; else if every one is true/false
// it is boolean; otherwise it is a string column holding the raw text. A
// column with no present tokens is float.
func InferColumn(name string, tokens []string) (*Column, error) {
	typ := inferType(tokens)
	values := make([]any, len(tokens))
	for i, tok := range tokens {
		if IsMissingToken(tok) {
			continue
		}
		switch typ {
		case Integer:
			values[i], _ = ParseInt(tok)
		case Float:
			values[i], _ = ParseNumber(tok)
		case Boolean:
			values[i], _ = ParseBool(tok)
		default:
			values[i] = tok
		}
	}
	return NewColumn(name, typ, values)
}

func inferType(tokens []string) Type {
	isInt, isFloat, isBool := true, true, true
	present := 0
	for _, tok := range tokens {
		if IsMissingToken(tok) {
			continue
		}
		present++
		if isInt {
			if _, ok := ParseInt(tok); !ok {
				isInt = false
			}
		}
		if isFloat {
			if _, ok := ParseNumber(tok); !ok {
				isFloat = false
			}
		}
		if isBool {
			if _, ok := ParseBool(tok); !ok {
				isBool = false
			}
		}
		if !isInt && !isFloat && !isBool {
			return String
		}
	}
	switch {
	case present == 0:
		return Float
	case isInt:
		return Integer
	case isFloat:
		return Float
	case isBool:
		return Boolean
	}
	return String
}
