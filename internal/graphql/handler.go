package graphql

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"

	"bothub/internal/hub"
)

// maxRequestBytes 限制单次查询的请求体大小。
const maxRequestBytes = 1 << 20

// request 是 GraphQL over HTTP 的标准请求载荷。
type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// Handler 在 POST 端点上执行 GraphQL 查询。
type Handler struct {
	schema graphql.Schema
}

// NewHandler 基于业务服务构建 GraphQL HTTP 处理器。
func NewHandler(svc *hub.Service) (*Handler, error) {
	schema, err := NewSchema(svc)
	if err != nil {
		return nil, err
	}
	return &Handler{schema: schema}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(&req); err != nil {
		writeResult(w, http.StatusBadRequest, map[string]any{
			"errors": []map[string]any{{"message": "invalid request body"}},
		})
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})
	// 按 GraphQL 惯例，执行期错误也使用 200 返回，错误体现在 errors 字段。
	writeResult(w, http.StatusOK, result)
}

func writeResult(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
