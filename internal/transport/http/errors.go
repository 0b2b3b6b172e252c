package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"listsync/backend/internal/domain"
	"listsync/backend/internal/reconcile"
	"listsync/backend/internal/service"
	"listsync/backend/internal/storage"
)

type errorMapping struct {
	err    error
	status int
	msg    string
}

// 业务错误 -> HTTP 状态码与中文消息
var errorMappings = []errorMapping{
	{storage.ErrMailingListNotFound, http.StatusNotFound, "邮件列表不存在"},
	{storage.ErrHostedDomainNotFound, http.StatusNotFound, "域名不存在"},
	{storage.ErrMailingListExists, http.StatusConflict, "该域名下已存在同名列表"},
	{service.ErrInvalidTransition, http.StatusConflict, "当前状态不允许该操作"},
	{service.ErrNothingToUpdate, http.StatusBadRequest, "没有需要更新的字段"},
	{reconcile.ErrRunInProgress, http.StatusConflict, "协调正在进行中"},

	{domain.ErrInvalidListName, http.StatusBadRequest, "列表名格式无效"},
	{domain.ErrListNameTooLong, http.StatusBadRequest, "列表名过长"},
	{domain.ErrListNameReserved, http.StatusBadRequest, "列表名不能以保留后缀结尾"},
	{domain.ErrInvalidEmail, http.StatusBadRequest, "邮箱格式无效"},
	{domain.ErrEmailTooLong, http.StatusBadRequest, "邮箱地址过长"},
	{domain.ErrPasswordTooShort, http.StatusBadRequest, "密码至少 8 个字符"},
	{domain.ErrPasswordTooLong, http.StatusBadRequest, "密码过长"},
	{domain.ErrPasswordWhitespace, http.StatusBadRequest, "密码不能包含空白字符"},
}

// 通用错误消息
const (
	MsgInvalidRequest  = "请求参数格式错误"
	MsgInvalidDomainID = "域名 ID 无效"
	MsgInternal        = "服务器内部错误"
	MsgReconcileFailed = "协调执行失败"
)

// writeError 根据错误类型写入响应，未知错误记录日志并返回 500
func writeError(c *gin.Context, log *zap.Logger, err error) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.err) {
			Error(c, mapping.status, mapping.msg)
			return
		}
	}

	log.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	InternalError(c, MsgInternal)
}
