package scheduler

import (
	"errors"
	"math"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

// Violation 是某条约束在一个染色体上的一次违反
type Violation struct {
	Kind     Kind
	Severity domain.Severity
	Hard     bool
	Penalty  float64
	Genes    []int
}

type predicate func(genes []Gene) []Violation

// professorRules 是某位教师生效的约束
type professorRules struct {
	available      []bool // 为 nil 时表示任何时间都可以上课
	availability   *Constraint
	maxDaily       *Constraint // Value 为每天最多的课时数
	consecutive    *Constraint // Value 为最多连续的课时数
	minInterval    *Constraint // Value 为两节课之间的最少间隔分钟数
	preferredRoom  *Constraint
	preferredShift *Constraint
	lunchBreak     *Constraint
}

type Catalog struct {
	p          *problem
	logger     *zap.Logger
	rules      []professorRules
	predicates []predicate

	roomDoubleBooking      Constraint
	professorDoubleBooking Constraint
	preferenceMismatch     Constraint
}

func newCatalog(p *problem, globals []domain.Restriction, logger *zap.Logger) (*Catalog, error) {
	c := &Catalog{
		p:      p,
		logger: logger,
		rules:  make([]professorRules, len(p.professors)),
		roomDoubleBooking: Constraint{
			Kind: KindRoomDoubleBooking, Professor: -1, Severity: domain.SeverityCritical, Weight: 1, Hard: true,
		},
		professorDoubleBooking: Constraint{
			Kind: KindProfessorDoubleBooking, Professor: -1, Severity: domain.SeverityCritical, Weight: 1, Hard: true,
		},
		preferenceMismatch: Constraint{
			Kind: KindPreferenceMismatch, Professor: -1, Severity: domain.SeverityLow, Weight: 1, Hard: false,
		},
	}
	for i, pref := range p.preferences {
		if pref == nil {
			continue
		}

		mask, err := availabilityMask(pref.Availability, p.slots)
		if err != nil {
			return nil, inputErrorf("preference", pref.ID, "可用时间不合法: %v", err)
		}
		if mask != nil {
			c.rules[i].available = mask
			c.rules[i].availability = c.register(Constraint{
				Kind: KindAvailability, Professor: i, Severity: domain.SeverityHigh, Weight: 1, Hard: true,
			})
		}

		if pref.MaxDailyHours > 0 {
			c.tightenMaxDaily(i, Constraint{
				Kind:      KindMaxDailyLoad,
				Professor: i,
				Severity:  domain.SeverityHigh,
				Weight:    1,
				Hard:      true,
				Value:     NumberValue(float64(c.hoursToBlocks(float64(pref.MaxDailyHours)))),
			})
		}

		for _, r := range pref.Restrictions {
			if err := c.apply(r, []int{i}); err != nil {
				if errors.Is(err, errUnsupportedRestriction) {
					c.logger.Warn("忽略暂不支持的限制条件", zap.Int64("professorID", p.professors[i].ID), zap.String("type", string(r.Type)))
					continue
				}
				return nil, inputErrorf("preference", pref.ID, "限制条件 %s 不合法: %v", r.Type, err)
			}
		}
	}

	everyone := make([]int, len(p.professors))
	for i := range everyone {
		everyone[i] = i
	}
	for _, r := range globals {
		if err := c.apply(r, everyone); err != nil {
			if errors.Is(err, errUnsupportedRestriction) {
				c.logger.Warn("忽略暂不支持的全局限制条件", zap.String("type", string(r.Type)))
				continue
			}
			return nil, configErrorf("globalRestrictions", "%s 不合法: %v", r.Type, err)
		}
	}

	// 谓词按固定顺序执行，保证结果可复现
	c.predicates = []predicate{
		c.checkRoomDoubleBooking,
		c.checkProfessorDoubleBooking,
		c.checkAvailability,
		c.checkMaxDailyLoad,
		c.checkConsecutiveBlocks,
		c.checkMinInterval,
		c.checkLunchBreak,
		c.checkRoomPreference,
		c.checkShiftPreference,
		c.checkPreferenceMismatch,
	}

	return c, nil
}

func (c *Catalog) register(con Constraint) *Constraint {
	return &con
}

func (c *Catalog) hoursToBlocks(hours float64) int {
	if c.p.blockMinutes <= 0 {
		return 1
	}
	return max(1, int(math.Floor(hours*60/float64(c.p.blockMinutes))))
}

// tightenMaxDaily 同一位教师存在多个每日上限时取最严格的一个
func (c *Catalog) tightenMaxDaily(i int, con Constraint) {
	current := c.rules[i].maxDaily
	if current != nil && current.Value.Number() <= con.Value.Number() {
		return
	}
	c.rules[i].maxDaily = c.register(con)
}

func (c *Catalog) tightenConsecutive(i int, con Constraint) {
	current := c.rules[i].consecutive
	if current != nil && current.Value.Number() <= con.Value.Number() {
		return
	}
	c.rules[i].consecutive = c.register(con)
}

// apply 将一条限制条件作用到 professors 上
func (c *Catalog) apply(r domain.Restriction, professors []int) error {
	if r.Priority < 0 || r.Priority > 5 {
		return errors.New("优先级必须在 1-5 之间")
	}

	value, err := resolveValue(r)
	if err != nil {
		return err
	}

	for _, i := range professors {
		switch r.Type {
		case domain.RestrictionNoConsecutive:
			con := restrictionConstraint(KindConsecutiveBlocks, i, r, NumberValue(1))
			con.Hard = true
			c.tightenConsecutive(i, con)
		case domain.RestrictionConsecutiveCourses:
			con := restrictionConstraint(KindConsecutiveBlocks, i, r, NumberValue(math.Floor(value.Number())))
			con.Hard = true
			c.tightenConsecutive(i, con)
		case domain.RestrictionMaxDailyLoad:
			con := restrictionConstraint(KindMaxDailyLoad, i, r, NumberValue(float64(c.hoursToBlocks(value.Number()))))
			con.Hard = true
			c.tightenMaxDaily(i, con)
		case domain.RestrictionMinInterval:
			c.rules[i].minInterval = c.register(restrictionConstraint(KindMinInterval, i, r, value))
		case domain.RestrictionPreferredRoom:
			c.rules[i].preferredRoom = c.register(restrictionConstraint(KindRoomPreference, i, r, value))
		case domain.RestrictionPreferredShift:
			c.rules[i].preferredShift = c.register(restrictionConstraint(KindShiftPreference, i, r, value))
		case domain.RestrictionLunchBreak:
			c.rules[i].lunchBreak = c.register(restrictionConstraint(KindLunchBreak, i, r, value))
		}
	}
	return nil
}

// Evaluate 依次执行所有谓词并汇总违反情况，不修改染色体
func (c *Catalog) Evaluate(genes []Gene) ([]Violation, error) {
	if err := c.validate(genes); err != nil {
		return nil, err
	}

	violations := make([]Violation, 0)
	for _, check := range c.predicates {
		violations = append(violations, check(genes)...)
	}
	return violations, nil
}

func (c *Catalog) validate(genes []Gene) error {
	if len(genes) != len(c.p.blocks) {
		return &EvaluationError{Gene: -1, Reason: "染色体长度与课时数不一致"}
	}
	for i, g := range genes {
		if g.Block != i {
			return &EvaluationError{Gene: i, Reason: "课时引用错位"}
		}
		if g.Room < 0 || g.Room >= len(c.p.rooms) {
			return &EvaluationError{Gene: i, Reason: "教室引用不存在"}
		}
		if g.Slot < 0 || g.Slot >= len(c.p.slots) {
			return &EvaluationError{Gene: i, Reason: "时间引用不存在"}
		}
	}
	return nil
}

func violationOf(con Constraint, penalty float64, genes ...int) Violation {
	return Violation{
		Kind:     con.Kind,
		Severity: con.Severity,
		Hard:     con.Hard,
		Penalty:  penalty,
		Genes:    genes,
	}
}

// checkRoomDoubleBooking: 同一教室同一时间被安排了多个课时，每一对记一次
func (c *Catalog) checkRoomDoubleBooking(genes []Gene) []Violation {
	var out []Violation
	seen := make(map[int][]int)
	for i, g := range genes {
		key := g.Room*len(c.p.slots) + g.Slot
		for _, j := range seen[key] {
			out = append(out, violationOf(c.roomDoubleBooking, 1, j, i))
		}
		seen[key] = append(seen[key], i)
	}
	return out
}

// checkProfessorDoubleBooking: 同一教师同一时间被安排了多个课时，每一对记一次
func (c *Catalog) checkProfessorDoubleBooking(genes []Gene) []Violation {
	var out []Violation
	seen := make(map[int][]int)
	for i, g := range genes {
		key := c.p.blocks[g.Block].professor*len(c.p.slots) + g.Slot
		for _, j := range seen[key] {
			out = append(out, violationOf(c.professorDoubleBooking, 1, j, i))
		}
		seen[key] = append(seen[key], i)
	}
	return out
}

func (c *Catalog) checkAvailability(genes []Gene) []Violation {
	var out []Violation
	for i, g := range genes {
		rules := c.rules[c.p.blocks[g.Block].professor]
		if rules.available != nil && !rules.available[g.Slot] {
			out = append(out, violationOf(*rules.availability, 1, i))
		}
	}
	return out
}

// professorDays 将基因按教师和星期分组，组内按时间先后排序
func (c *Catalog) professorDays(genes []Gene) [][][]int {
	out := make([][][]int, len(c.p.professors))
	for i, g := range genes {
		prof := c.p.blocks[g.Block].professor
		if out[prof] == nil {
			out[prof] = make([][]int, domain.Saturday+1)
		}
		day := c.p.slots[g.Slot].Day
		out[prof][day] = append(out[prof][day], i)
	}
	for _, days := range out {
		for _, group := range days {
			sort.SliceStable(group, func(a, b int) bool {
				return genes[group[a]].Slot < genes[group[b]].Slot
			})
		}
	}
	return out
}

func (c *Catalog) checkMaxDailyLoad(genes []Gene) []Violation {
	var out []Violation
	for prof, days := range c.professorDays(genes) {
		con := c.rules[prof].maxDaily
		if con == nil {
			continue
		}
		limit := int(con.Value.Number())
		for _, group := range days {
			if len(group) > limit {
				out = append(out, violationOf(*con, 1, group...))
			}
		}
	}
	return out
}

// checkConsecutiveBlocks: 同一天内首尾相接的课时长度超过上限，每一段记一次
func (c *Catalog) checkConsecutiveBlocks(genes []Gene) []Violation {
	var out []Violation
	for prof, days := range c.professorDays(genes) {
		con := c.rules[prof].consecutive
		if con == nil {
			continue
		}
		limit := int(con.Value.Number())
		for _, group := range days {
			if len(group) == 0 {
				continue
			}
			run := []int{group[0]}
			runSlots := 1
			flush := func() {
				if runSlots > limit {
					out = append(out, violationOf(*con, con.Weight, run...))
				}
			}
			for k := 1; k < len(group); k++ {
				prev := c.p.slots[genes[group[k-1]].Slot]
				cur := c.p.slots[genes[group[k]].Slot]
				switch {
				case prev.Index == cur.Index:
					// 同一时间的重复安排由 professor_double_booking 负责
					run = append(run, group[k])
				case prev.precedes(cur):
					run = append(run, group[k])
					runSlots++
				default:
					flush()
					run = []int{group[k]}
					runSlots = 1
				}
			}
			flush()
		}
	}
	return out
}

func (c *Catalog) checkMinInterval(genes []Gene) []Violation {
	var out []Violation
	for prof, days := range c.professorDays(genes) {
		con := c.rules[prof].minInterval
		if con == nil {
			continue
		}
		minutes := int(con.Value.Number())
		for _, group := range days {
			for k := 1; k < len(group); k++ {
				prev := c.p.slots[genes[group[k-1]].Slot]
				cur := c.p.slots[genes[group[k]].Slot]
				if prev.Index == cur.Index {
					continue
				}
				if gap := cur.Start - prev.End; gap < minutes {
					out = append(out, violationOf(*con, con.Weight, group[k-1], group[k]))
				}
			}
		}
	}
	return out
}

func (c *Catalog) checkLunchBreak(genes []Gene) []Violation {
	var out []Violation
	for i, g := range genes {
		con := c.rules[c.p.blocks[g.Block].professor].lunchBreak
		if con == nil {
			continue
		}
		lo, hi := con.Value.Range()
		if c.p.slots[g.Slot].overlaps(lo, hi) {
			out = append(out, violationOf(*con, con.Weight, i))
		}
	}
	return out
}

func (c *Catalog) checkRoomPreference(genes []Gene) []Violation {
	var out []Violation
	for i, g := range genes {
		con := c.rules[c.p.blocks[g.Block].professor].preferredRoom
		if con == nil {
			continue
		}
		room := c.p.rooms[g.Room]
		want := con.Value.Text()
		if want != strconv.FormatInt(room.ID, 10) && want != room.Code {
			out = append(out, violationOf(*con, con.Weight, i))
		}
	}
	return out
}

func (c *Catalog) checkShiftPreference(genes []Gene) []Violation {
	var out []Violation
	for i, g := range genes {
		con := c.rules[c.p.blocks[g.Block].professor].preferredShift
		if con == nil {
			continue
		}
		if string(c.p.slots[g.Slot].Shift) != con.Value.Text() {
			out = append(out, violationOf(*con, con.Weight, i))
		}
	}
	return out
}

// checkPreferenceMismatch: 每门课程按 (5 - 偏好等级) / 5 乘以课时数计算软惩罚
func (c *Catalog) checkPreferenceMismatch(genes []Gene) []Violation {
	var out []Violation
	for _, ob := range c.p.obligations {
		if ob.level >= 5 || len(ob.blocks) == 0 {
			continue
		}
		penalty := float64(5-ob.level) / 5 * float64(len(ob.blocks))
		out = append(out, violationOf(c.preferenceMismatch, penalty, ob.blocks...))
	}
	return out
}

// availabilityMask 计算每个课时是否可用
// 存在 available=true 的窗口时，只有被这些窗口覆盖的课时可用；available=false 的窗口总是屏蔽对应课时
func availabilityMask(windows []domain.AvailabilityWindow, slots []Slot) ([]bool, error) {
	if len(windows) == 0 {
		return nil, nil
	}

	type window struct {
		day       domain.Day
		shift     domain.Shift
		ranges    [][2]int
		available bool
	}

	parsed := make([]window, 0, len(windows))
	whitelist := false
	for _, w := range windows {
		if !w.Day.Valid() {
			return nil, errors.New("星期不合法")
		}
		pw := window{day: w.Day, available: w.Available}
		if w.Shift != "" {
			shift, ok := domain.ParseShift(string(w.Shift))
			if !ok {
				return nil, errors.New("时段不合法")
			}
			pw.shift = shift
		}
		for _, r := range w.Ranges {
			lo, err := parseClock(r.StartTime)
			if err != nil {
				return nil, err
			}
			hi, err := parseClock(r.EndTime)
			if err != nil {
				return nil, err
			}
			if lo >= hi {
				return nil, errors.New("时间区间的开始时间必须早于结束时间")
			}
			pw.ranges = append(pw.ranges, [2]int{lo, hi})
		}
		whitelist = whitelist || w.Available
		parsed = append(parsed, pw)
	}

	matches := func(w window, s Slot) bool {
		if w.day != s.Day || (w.shift != "" && w.shift != s.Shift) {
			return false
		}
		if len(w.ranges) == 0 {
			return true
		}
		for _, r := range w.ranges {
			if w.available && r[0] <= s.Start && s.End <= r[1] {
				return true
			}
			if !w.available && s.overlaps(r[0], r[1]) {
				return true
			}
		}
		return false
	}

	mask := make([]bool, len(slots))
	for _, s := range slots {
		allowed := !whitelist
		for _, w := range parsed {
			if w.available && matches(w, s) {
				allowed = true
			}
		}
		for _, w := range parsed {
			if !w.available && matches(w, s) {
				allowed = false
			}
		}
		mask[s.Index] = allowed
	}
	return mask, nil
}
