package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"listsync/backend/internal/domain"
	"listsync/backend/internal/service"
)

// ========== Mailing List Handlers ==========

// createList 在托管域名下申请新的邮件列表
// POST /api/v1/domains/:domainID/lists
func (h *Handler) createList(c *gin.Context) {
	domainID, err := strconv.ParseUint(c.Param("domainID"), 10, 32)
	if err != nil || domainID == 0 {
		BadRequest(c, MsgInvalidDomainID)
		return
	}

	var input service.CreateMailingListInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	input.DomainID = uint(domainID)

	list, err := h.lists.Create(input)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	Created(c, list)
}

// listLists 列出邮件列表，支持 domainId 与 status 过滤
// GET /api/v1/lists
func (h *Handler) listLists(c *gin.Context) {
	var filter domain.MailingListFilter

	if raw := c.Query("domainId"); raw != "" {
		domainID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			BadRequest(c, MsgInvalidDomainID)
			return
		}
		id := uint(domainID)
		filter.DomainID = &id
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.MailingListStatus(raw)
		if !status.IsValid() {
			BadRequest(c, "未知的列表状态")
			return
		}
		filter.Status = &status
	}

	lists, err := h.lists.List(filter)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	Success(c, lists)
}

// getList 获取邮件列表详情
// GET /api/v1/lists/:id
func (h *Handler) getList(c *gin.Context) {
	list, err := h.lists.Get(c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	Success(c, list)
}

// updateList 修改管理员邮箱或密码
// PATCH /api/v1/lists/:id
func (h *Handler) updateList(c *gin.Context) {
	var input service.UpdateMailingListInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	list, err := h.lists.Update(c.Param("id"), input)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	Accepted(c, list)
}

// deleteList 申请删除邮件列表
// DELETE /api/v1/lists/:id
func (h *Handler) deleteList(c *gin.Context) {
	h.request(c, h.lists.Delete)
}

// enableList 申请启用邮件列表
// POST /api/v1/lists/:id/enable
func (h *Handler) enableList(c *gin.Context) {
	h.request(c, h.lists.Enable)
}

// disableList 申请停用邮件列表
// POST /api/v1/lists/:id/disable
func (h *Handler) disableList(c *gin.Context) {
	h.request(c, h.lists.Disable)
}

// retryList 重试失败的邮件列表
// POST /api/v1/lists/:id/retry
func (h *Handler) retryList(c *gin.Context) {
	h.request(c, h.lists.Retry)
}

func (h *Handler) request(c *gin.Context, fn func(id string) (*domain.MailingList, error)) {
	list, err := fn(c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	Accepted(c, list)
}
