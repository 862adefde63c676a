package intent

import "strings"

// Token is the minimal metadata needed to parse user amounts.
type Token struct {
	AssetID    string
	Symbol     string
	Blockchain string
	Decimals   int32
}

// TokenList indexes tokens by asset id.
type TokenList map[string]Token

func NewTokenList(tokens ...Token) TokenList {
	l := make(TokenList, len(tokens))
	for _, t := range tokens {
		l[t.AssetID] = t
	}
	return l
}

// Decimals returns the decimals of asset.
func (l TokenList) Decimals(asset string) (int32, bool) {
	t, ok := l[asset]
	return t.Decimals, ok
}

// Find resolves a symbol, optionally restricted to a blockchain, or an asset id.
func (l TokenList) Find(symbolOrID, blockchain string) (Token, bool) {
	if t, ok := l[symbolOrID]; ok {
		return t, true
	}
	for _, t := range l {
		if !strings.EqualFold(t.Symbol, symbolOrID) {
			continue
		}
		if blockchain == "" || strings.EqualFold(t.Blockchain, blockchain) {
			return t, true
		}
	}
	return Token{}, false
}
