package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listsync/backend/internal/actions"
	"listsync/backend/internal/config"
	"listsync/backend/internal/domain"
	"listsync/backend/internal/mailman"
	"listsync/backend/internal/monitoring"
	"listsync/backend/internal/postfix"
	"listsync/backend/internal/publish"
	"listsync/backend/internal/secret"
	"listsync/backend/internal/storage"
	"listsync/backend/internal/storage/memory"
)

// mailmanSim 模拟列表管理器命令：列表目录即列表是否存在的依据
type mailmanSim struct {
	listsDir string
	calls    [][]string
	fail     map[string]error // "命令 目标" -> 错误
}

func (s *mailmanSim) Run(_ context.Context, name string, args ...string) (string, error) {
	s.calls = append(s.calls, append([]string{filepath.Base(name)}, args...))

	base := filepath.Base(name)
	target := ""
	switch base {
	case "newlist":
		target = args[len(args)-3]
	case "rmlist", "config_list":
		target = args[len(args)-1]
	case "change_pw":
		target = args[2]
	case "a2ensite", "a2dissite":
		target = args[0]
	}
	if err := s.fail[base+" "+target]; err != nil {
		return "", err
	}

	switch base {
	case "list_lists":
		entries, err := os.ReadDir(s.listsDir)
		if err != nil {
			return "", err
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		return strings.Join(names, "\n") + "\n", nil
	case "newlist":
		return "", os.MkdirAll(filepath.Join(s.listsDir, target), 0o755)
	case "rmlist":
		return "", os.RemoveAll(filepath.Join(s.listsDir, target))
	}
	return "", nil
}

func (s *mailmanSim) called(command string) [][]string {
	var matched [][]string
	for _, call := range s.calls {
		if call[0] == command {
			matched = append(matched, call)
		}
	}
	return matched
}

type harness struct {
	cfg    *config.Config
	store  *memory.Store
	hosted *domain.HostedDomain
	box    *secret.Box
	sim    *mailmanSim
	queue  *actions.MemoryQueue
	sites  *publish.SiteManager
	engine *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()

	cfg := &config.Config{
		Server: config.ServerConfig{IP: "192.0.2.10"},
		Mailman: config.MailmanConfig{
			BinDir:      "/usr/lib/mailman/bin",
			ListsDir:    filepath.Join(root, "lists"),
			DisabledDir: filepath.Join(root, "lists.disabled"),
		},
		Postfix: config.PostfixConfig{
			TransportMap:    filepath.Join(root, "transport"),
			MailboxesMap:    filepath.Join(root, "mailboxes"),
			TransportTarget: "mailman:",
			DiscardTarget:   "/dev/null",
			PostmapBin:      "postmap",
			Service:         "postfix",
		},
		Web: config.WebConfig{
			SitesDir:         filepath.Join(root, "sites"),
			EnsiteBin:        "a2ensite",
			DissiteBin:       "a2dissite",
			Service:          "apache2",
			SystemUserPrefix: "vu",
			SystemUserMinUID: 2000,
		},
		DNS: config.DNSConfig{TTL: 3600},
	}
	require.NoError(t, os.MkdirAll(cfg.Mailman.ListsDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.Web.SitesDir, 0o755))
	require.NoError(t, os.WriteFile(cfg.Postfix.TransportMap, nil, 0o644))
	require.NoError(t, os.WriteFile(cfg.Postfix.MailboxesMap, nil, 0o644))

	store := memory.NewStore()
	hosted := &domain.HostedDomain{Name: "example.com"}
	require.NoError(t, store.SaveHostedDomain(hosted))

	box, err := secret.NewBox([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	sim := &mailmanSim{listsDir: cfg.Mailman.ListsDir, fail: map[string]error{}}
	queue := actions.NewMemoryQueue()

	sites, err := publish.NewSiteManager(cfg, sim, queue, nil)
	require.NoError(t, err)

	engine := NewEngine(Dependencies{
		Store:   store,
		Lists:   mailman.New(cfg.Mailman, sim, nil),
		Tables:  postfix.New(cfg.Postfix, queue, nil),
		Sites:   sites,
		DNS:     publish.NewRecordPublisher(cfg, store, nil),
		Secrets: box,
		Metrics: monitoring.NewMetrics(),
	})

	return &harness{cfg: cfg, store: store, hosted: hosted, box: box, sim: sim, queue: queue, sites: sites, engine: engine}
}

func (h *harness) addList(t *testing.T, name string, status domain.MailingListStatus) *domain.MailingList {
	t.Helper()
	sealed, err := h.box.Seal("pw-" + name)
	require.NoError(t, err)

	list := &domain.MailingList{
		DomainID:      h.hosted.ID,
		DomainName:    h.hosted.Name,
		Name:          name,
		AdminEmail:    "owner@example.com",
		AdminPassword: sealed,
		Status:        status,
	}
	require.NoError(t, h.store.SaveMailingList(list))
	return list
}

func (h *harness) setStatus(t *testing.T, id string, status domain.MailingListStatus) {
	t.Helper()
	require.NoError(t, h.store.UpdateMailingListStatus(id, domain.MailingListStatusUpdate{Status: status}))
}

func (h *harness) status(t *testing.T, id string) *domain.MailingList {
	t.Helper()
	list, err := h.store.GetMailingList(id)
	require.NoError(t, err)
	return list
}

func (h *harness) run(t *testing.T) *Report {
	t.Helper()
	report, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	return report
}

func readMap(t *testing.T, path string) []string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var lines []string
	for _, line := range strings.Split(string(content), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func countPrefix(lines []string, prefix string) int {
	count := 0
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			count++
		}
	}
	return count
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestEngine_Run_Empty(t *testing.T) {
	h := newHarness(t)
	h.addList(t, "stable", domain.MailingListStatusOK)

	report := h.run(t)

	assert.Equal(t, 0, report.Pending)
	assert.Equal(t, 0, report.Succeeded)
	assert.Empty(t, h.sim.calls)
}

func TestEngine_Create(t *testing.T) {
	h := newHarness(t)
	list := h.addList(t, "foo", domain.MailingListStatusCreatePending)

	report := h.run(t)

	assert.Equal(t, 1, report.Pending)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, domain.MailingListStatusOK, h.status(t, list.ID).Status)

	t.Run("列表已创建", func(t *testing.T) {
		newlist := h.sim.called("newlist")
		require.Len(t, newlist, 1)
		assert.Equal(t, []string{"newlist", "-q", "-u", "lists.example.com", "-e", "example.com", "foo", "owner@example.com", "pw-foo"}, newlist[0])
		assert.True(t, exists(filepath.Join(h.cfg.Mailman.ListsDir, "foo")))
	})

	t.Run("路由表写入十个地址", func(t *testing.T) {
		transport := readMap(t, h.cfg.Postfix.TransportMap)
		mailboxes := readMap(t, h.cfg.Postfix.MailboxesMap)
		require.Len(t, transport, 10)
		require.Len(t, mailboxes, 10)

		assert.Contains(t, transport, "foo@example.com\tmailman:")
		assert.Contains(t, transport, "foo-admin@example.com\tmailman:")
		assert.Contains(t, transport, "foo-unsubscribe@example.com\tmailman:")
		assert.Contains(t, mailboxes, "foo@example.com\t/dev/null")
		assert.Contains(t, mailboxes, "foo-request@example.com\t/dev/null")
	})

	t.Run("站点与DNS记录已发布", func(t *testing.T) {
		assert.True(t, exists(h.sites.SitePath(list)))

		records, err := h.store.ListDNSRecords(h.hosted.ID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "lists.example.com.", records[0].Name)
		assert.Equal(t, "A", records[0].Type)
		assert.Equal(t, "192.0.2.10", records[0].Data)
		assert.Equal(t, domain.DNSRecordOwnerMailingList, records[0].OwnedBy)

		hosted, err := h.store.GetHostedDomain(h.hosted.ID)
		require.NoError(t, err)
		assert.True(t, hosted.DNSDirty)
	})

	t.Run("登记重建与重启", func(t *testing.T) {
		pending, err := h.queue.Pending(context.Background())
		require.NoError(t, err)
		assert.ElementsMatch(t, []actions.Action{
			actions.Postmap(h.cfg.Postfix.TransportMap),
			actions.Postmap(h.cfg.Postfix.MailboxesMap),
			actions.Restart("postfix"),
			actions.Restart("apache2"),
		}, pending)
	})

	t.Run("重复创建不重复写入", func(t *testing.T) {
		h.setStatus(t, list.ID, domain.MailingListStatusCreatePending)

		report := h.run(t)

		assert.Equal(t, 1, report.Succeeded)
		assert.Len(t, h.sim.called("newlist"), 1)
		assert.Len(t, readMap(t, h.cfg.Postfix.TransportMap), 10)
		assert.Len(t, readMap(t, h.cfg.Postfix.MailboxesMap), 10)

		records, err := h.store.ListDNSRecords(h.hosted.ID)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})
}

func TestEngine_Delete(t *testing.T) {
	t.Run("删除已创建的列表", func(t *testing.T) {
		h := newHarness(t)
		list := h.addList(t, "foo", domain.MailingListStatusCreatePending)
		keep := h.addList(t, "bar", domain.MailingListStatusCreatePending)
		h.run(t)

		h.setStatus(t, list.ID, domain.MailingListStatusDeletePending)
		report := h.run(t)

		assert.Equal(t, 1, report.Deleted)
		_, err := h.store.GetMailingList(list.ID)
		assert.ErrorIs(t, err, storage.ErrMailingListNotFound)

		assert.Len(t, h.sim.called("rmlist"), 1)
		assert.False(t, exists(filepath.Join(h.cfg.Mailman.ListsDir, "foo")))

		transport := readMap(t, h.cfg.Postfix.TransportMap)
		mailboxes := readMap(t, h.cfg.Postfix.MailboxesMap)
		assert.Equal(t, 0, countPrefix(transport, "foo"))
		assert.Equal(t, 0, countPrefix(mailboxes, "foo"))
		assert.Equal(t, 10, countPrefix(transport, "bar"))

		assert.False(t, exists(h.sites.SitePath(list)))
		records, err := h.store.ListDNSRecords(h.hosted.ID)
		require.NoError(t, err)
		assert.Empty(t, records)

		assert.Equal(t, domain.MailingListStatusOK, h.status(t, keep.ID).Status)
	})

	t.Run("外部资源已不存在时可重复删除", func(t *testing.T) {
		h := newHarness(t)
		list := h.addList(t, "ghost", domain.MailingListStatusDeletePending)

		report := h.run(t)

		assert.Equal(t, 1, report.Succeeded)
		assert.Equal(t, 1, report.Deleted)
		assert.Empty(t, h.sim.called("rmlist"))
		assert.Empty(t, h.sim.called("a2dissite"))
		_, err := h.store.GetMailingList(list.ID)
		assert.ErrorIs(t, err, storage.ErrMailingListNotFound)
	})

	t.Run("删除失败保留记录", func(t *testing.T) {
		h := newHarness(t)
		list := h.addList(t, "foo", domain.MailingListStatusCreatePending)
		h.run(t)

		h.sim.fail["rmlist foo"] = errors.New("rmlist: permission denied")
		h.setStatus(t, list.ID, domain.MailingListStatusDeletePending)
		report := h.run(t)

		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, 0, report.Deleted)

		stored := h.status(t, list.ID)
		assert.Equal(t, domain.MailingListStatusFailed, stored.Status)
		assert.Equal(t, domain.MailingListStatusDeletePending, stored.FailedStatus)
		require.NotNil(t, stored.LastError)
		assert.Equal(t, "remove list: rmlist: permission denied", *stored.LastError)

		// 后续步骤未执行
		assert.Equal(t, 10, countPrefix(readMap(t, h.cfg.Postfix.TransportMap), "foo"))
	})
}

func TestEngine_DisableThenEnable(t *testing.T) {
	h := newHarness(t)
	list := h.addList(t, "foo", domain.MailingListStatusCreatePending)
	h.run(t)

	vhostBefore, err := os.ReadFile(h.sites.SitePath(list))
	require.NoError(t, err)
	recordsBefore, err := h.store.ListDNSRecords(h.hosted.ID)
	require.NoError(t, err)
	require.Len(t, recordsBefore, 1)

	t.Run("停用", func(t *testing.T) {
		h.setStatus(t, list.ID, domain.MailingListStatusDisablePending)
		report := h.run(t)

		assert.Equal(t, 1, report.Succeeded)
		assert.Equal(t, domain.MailingListStatusDisabled, h.status(t, list.ID).Status)
		assert.False(t, exists(filepath.Join(h.cfg.Mailman.ListsDir, "foo")))
		assert.True(t, exists(filepath.Join(h.cfg.Mailman.DisabledDir, "foo")))
		assert.False(t, exists(h.sites.SitePath(list)))

		records, err := h.store.ListDNSRecords(h.hosted.ID)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("再次启用", func(t *testing.T) {
		h.setStatus(t, list.ID, domain.MailingListStatusEnablePending)
		report := h.run(t)

		assert.Equal(t, 1, report.Succeeded)
		assert.Equal(t, domain.MailingListStatusOK, h.status(t, list.ID).Status)
		assert.True(t, exists(filepath.Join(h.cfg.Mailman.ListsDir, "foo")))
		assert.False(t, exists(filepath.Join(h.cfg.Mailman.DisabledDir, "foo")))

		vhostAfter, err := os.ReadFile(h.sites.SitePath(list))
		require.NoError(t, err)
		assert.Equal(t, string(vhostBefore), string(vhostAfter))

		records, err := h.store.ListDNSRecords(h.hosted.ID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, recordsBefore[0].Name, records[0].Name)
		assert.Equal(t, recordsBefore[0].Type, records[0].Type)
		assert.Equal(t, recordsBefore[0].Data, records[0].Data)
	})
}

func TestEngine_Enable_NoMarker(t *testing.T) {
	h := newHarness(t)
	list := h.addList(t, "foo", domain.MailingListStatusEnablePending)

	report := h.run(t)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, domain.MailingListStatusOK, h.status(t, list.ID).Status)
	assert.False(t, exists(h.sites.SitePath(list)))
	assert.Empty(t, h.sim.called("a2ensite"))
}

func TestEngine_Enable_RetryAfterPublishFailure(t *testing.T) {
	h := newHarness(t)
	list := h.addList(t, "foo", domain.MailingListStatusCreatePending)
	h.run(t)

	h.setStatus(t, list.ID, domain.MailingListStatusDisablePending)
	h.run(t)
	require.True(t, exists(filepath.Join(h.cfg.Mailman.DisabledDir, "foo")))

	// 第一次启用：目录已移回，但 a2ensite 失败
	h.sim.fail["a2ensite "+publish.SiteName(list)] = errors.New("exit status 1")
	h.setStatus(t, list.ID, domain.MailingListStatusEnablePending)
	report := h.run(t)

	require.Equal(t, 1, report.Failed)
	assert.True(t, exists(filepath.Join(h.cfg.Mailman.ListsDir, "foo")))
	assert.Equal(t, domain.MailingListStatusEnablePending, h.status(t, list.ID).FailedStatus)

	records, err := h.store.ListDNSRecords(h.hosted.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	// 重试时列表已在启用目录中，仍需重新发布
	delete(h.sim.fail, "a2ensite "+publish.SiteName(list))
	h.setStatus(t, list.ID, domain.MailingListStatusEnablePending)
	report = h.run(t)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, domain.MailingListStatusOK, h.status(t, list.ID).Status)
	assert.True(t, exists(h.sites.SitePath(list)))

	records, err = h.store.ListDNSRecords(h.hosted.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestEngine_Disable_AlwaysUnpublishes(t *testing.T) {
	h := newHarness(t)
	list := h.addList(t, "foo", domain.MailingListStatusOK)
	require.NoError(t, h.sites.Publish(context.Background(), list))

	h.setStatus(t, list.ID, domain.MailingListStatusDisablePending)
	report := h.run(t)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, domain.MailingListStatusDisabled, h.status(t, list.ID).Status)
	assert.False(t, exists(h.sites.SitePath(list)))
	assert.Len(t, h.sim.called("a2dissite"), 1)
}

func TestEngine_Update(t *testing.T) {
	t.Run("推送配置并修改密码", func(t *testing.T) {
		h := newHarness(t)
		list := h.addList(t, "foo", domain.MailingListStatusUpdatePending)

		report := h.run(t)

		assert.Equal(t, 1, report.Succeeded)
		assert.Equal(t, domain.MailingListStatusOK, h.status(t, list.ID).Status)

		configure := h.sim.called("config_list")
		require.Len(t, configure, 1)
		assert.Equal(t, "foo", configure[0][len(configure[0])-1])
		assert.Equal(t, [][]string{{"change_pw", "-q", "-l", "foo", "-p", "pw-foo"}}, h.sim.called("change_pw"))
	})

	t.Run("修改密码失败时配置不回滚", func(t *testing.T) {
		h := newHarness(t)
		list := h.addList(t, "foo", domain.MailingListStatusUpdatePending)
		h.sim.fail["change_pw foo"] = errors.New("exit status 1")

		report := h.run(t)

		assert.Equal(t, 1, report.Failed)
		assert.Len(t, h.sim.called("config_list"), 1)

		stored := h.status(t, list.ID)
		assert.Equal(t, domain.MailingListStatusFailed, stored.Status)
		assert.Equal(t, domain.MailingListStatusUpdatePending, stored.FailedStatus)
		require.NotNil(t, stored.LastError)
		assert.Equal(t, "change admin password: exit status 1", *stored.LastError)
	})
}

func TestEngine_FailureIsolation(t *testing.T) {
	h := newHarness(t)
	first := h.addList(t, "alpha", domain.MailingListStatusCreatePending)
	broken := h.addList(t, "beta", domain.MailingListStatusCreatePending)
	last := h.addList(t, "gamma", domain.MailingListStatusCreatePending)
	h.sim.fail["newlist beta"] = errors.New("newlist: list already exists")

	report := h.run(t)

	assert.Equal(t, 3, report.Pending)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "beta", report.Failures[0].Name)
	assert.Equal(t, domain.MailingListStatusCreatePending, report.Failures[0].Status)

	assert.Equal(t, domain.MailingListStatusOK, h.status(t, first.ID).Status)
	assert.Equal(t, domain.MailingListStatusOK, h.status(t, last.ID).Status)

	stored := h.status(t, broken.ID)
	assert.Equal(t, domain.MailingListStatusFailed, stored.Status)
	assert.Equal(t, domain.MailingListStatusCreatePending, stored.FailedStatus)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "list already exists")

	transport := readMap(t, h.cfg.Postfix.TransportMap)
	assert.Equal(t, 0, countPrefix(transport, "beta"))
	assert.Equal(t, 10, countPrefix(transport, "gamma"))

	t.Run("失败的列表不再被处理", func(t *testing.T) {
		report := h.run(t)
		assert.Equal(t, 0, report.Pending)
	})
}

func TestEngine_SealedPasswordInvalid(t *testing.T) {
	h := newHarness(t)
	list := h.addList(t, "foo", domain.MailingListStatusCreatePending)
	require.NoError(t, h.store.SaveMailingList(&domain.MailingList{
		ID:            list.ID,
		DomainID:      list.DomainID,
		DomainName:    list.DomainName,
		Name:          list.Name,
		AdminEmail:    list.AdminEmail,
		AdminPassword: "not-sealed",
		Status:        domain.MailingListStatusCreatePending,
		CreatedAt:     list.CreatedAt,
	}))

	report := h.run(t)

	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, h.sim.called("newlist"))
	stored := h.status(t, list.ID)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "open admin password")
}

// failingStore 在写入结果时返回错误
type failingStore struct {
	*memory.Store
	updates int
}

func (s *failingStore) UpdateMailingListStatus(string, domain.MailingListStatusUpdate) error {
	s.updates++
	return errors.New("database is locked")
}

func TestEngine_OutcomeWriteFailureAbortsLoop(t *testing.T) {
	h := newHarness(t)
	h.addList(t, "alpha", domain.MailingListStatusEnablePending)
	h.addList(t, "beta", domain.MailingListStatusEnablePending)

	store := &failingStore{Store: h.store}
	engine := NewEngine(Dependencies{
		Store:   store,
		Lists:   mailman.New(h.cfg.Mailman, h.sim, nil),
		Tables:  postfix.New(h.cfg.Postfix, h.queue, nil),
		Sites:   h.sites,
		DNS:     publish.NewRecordPublisher(h.cfg, h.store, nil),
		Secrets: h.box,
	})

	report, err := engine.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Equal(t, 1, store.updates)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Pending)
	assert.Equal(t, 0, report.Succeeded)
}

func TestEngine_ContextCanceled(t *testing.T) {
	h := newHarness(t)
	list := h.addList(t, "foo", domain.MailingListStatusCreatePending)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.MailingListStatusCreatePending, h.status(t, list.ID).Status)
	assert.Empty(t, h.sim.calls)
}
