package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/imtaco/reqflow/internal/errors"
)

type ParserTestSuite struct {
	suite.Suite
	ctx context.Context
}

func TestParserSuite(t *testing.T) {
	suite.Run(t, new(ParserTestSuite))
}

func (s *ParserTestSuite) SetupTest() {
	s.ctx = context.Background()
}

type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (s *ParserTestSuite) TestJMESPathAccepts() {
	parse, err := JMESPath("code == `0`")
	s.Require().NoError(err)

	s.NoError(parse(s.ctx, []byte(`{"code":0,"data":[1,2]}`)))
	s.NoError(parse(s.ctx, `{"code":0}`))
	s.NoError(parse(s.ctx, envelope{Code: 0}))
	s.NoError(parse(s.ctx, map[string]any{"code": float64(0)}))
}

func (s *ParserTestSuite) TestJMESPathRejects() {
	parse, err := JMESPath("code == `0`")
	s.Require().NoError(err)

	err = parse(s.ctx, envelope{Code: 401, Msg: "token expired"})
	rejected, ok := errors.As[*RejectedError](err)
	s.Require().True(ok)
	s.Equal("code == `0`", (*rejected).Expr)
	s.Equal(map[string]any{"code": float64(401), "msg": "token expired"}, (*rejected).Payload)
}

func (s *ParserTestSuite) TestInvalidExpression() {
	_, err := JMESPath("code ==")
	s.Require().ErrorIs(err, ErrInvalidExpr)

	_, err = ExpiredWhen("[[")
	s.Require().ErrorIs(err, ErrInvalidExpr)
}

func (s *ParserTestSuite) TestMalformedPayload() {
	parse, err := JMESPath("ok")
	s.Require().NoError(err)

	s.Require().ErrorIs(parse(s.ctx, []byte(`{"ok":`)), ErrDecode)
}

func (s *ParserTestSuite) TestExpiredWhen() {
	parse, err := JMESPath("code == `0`")
	s.Require().NoError(err)
	expired, err := ExpiredWhen("code == `401`")
	s.Require().NoError(err)

	s.True(expired(s.ctx, parse(s.ctx, envelope{Code: 401})))
	s.False(expired(s.ctx, parse(s.ctx, envelope{Code: 500})))
	s.False(expired(s.ctx, errors.PureNew("network down")))

	wrapped := errors.Wrap(errors.Code("fetch"), parse(s.ctx, envelope{Code: 401}), "outer")
	s.True(expired(s.ctx, wrapped))
}

func (s *ParserTestSuite) TestTruthy() {
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"nil", nil, false},
		{"false", false, false},
		{"true", true, true},
		{"empty string", "", false},
		{"string", "x", true},
		{"empty list", []any{}, false},
		{"list", []any{1}, true},
		{"empty object", map[string]any{}, false},
		{"object", map[string]any{"a": 1}, true},
		{"zero number", float64(0), true},
		{"typed empty slice", []string{}, false},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.want, Truthy(tt.v))
		})
	}
}
