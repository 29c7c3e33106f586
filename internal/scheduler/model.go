package scheduler

import (
	"math"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

const semesterWeeks = 15

// Input 是一次排班所需的全部实体，由调用方在提交前读取并校验
type Input struct {
	Scope              domain.RunScope
	Calendar           domain.CalendarConfig
	Professors         []*domain.Professor
	Courses            []*domain.Course
	Rooms              []*domain.Room
	Preferences        []*domain.ProfessorPreference
	GlobalRestrictions []domain.Restriction
}

// Gene: 第 Block 个课时被安排在哪个教室的哪个时间
// Block 在整个种群中保持不变，保证按位置交叉是合法的
type Gene struct {
	Block int
	Room  int
	Slot  int
}

// Chromosome: 整个课表
type Chromosome struct {
	genes     []Gene
	fitness   Fitness
	evaluated bool
}

func (ch *Chromosome) Len() int { return len(ch.genes) }

func (ch *Chromosome) Genes() []Gene {
	genes := make([]Gene, len(ch.genes))
	copy(genes, ch.genes)
	return genes
}

func (ch *Chromosome) Fitness() Fitness { return ch.fitness }

// clone 深拷贝基因，适应度随之保留
func (ch *Chromosome) clone() *Chromosome {
	genes := make([]Gene, len(ch.genes))
	copy(genes, ch.genes)
	return &Chromosome{genes: genes, fitness: ch.fitness, evaluated: ch.evaluated}
}

// offspring 深拷贝基因，但需要重新计算适应度
func (ch *Chromosome) offspring() *Chromosome {
	genes := make([]Gene, len(ch.genes))
	copy(genes, ch.genes)
	return &Chromosome{genes: genes}
}

// obligation 表示某位教师需要承担的一门课程
type obligation struct {
	professor int
	course    int
	level     int32
	blocks    []int
}

type block struct {
	obligation int
	professor  int
	course     int
}

type problem struct {
	scope        domain.RunScope
	slots        []Slot
	blockMinutes int
	professors   []*domain.Professor
	preferences  []*domain.ProfessorPreference // 与 professors 对齐，可能为 nil
	courses      []*domain.Course
	rooms        []*domain.Room
	obligations  []obligation
	blocks       []block
	roomChoices  [][]int // 每门课程可用的教室下标
}

// ExpandBlocks 计算一门课程每周需要的课时数
// 优先使用 WeeklyBlocks，其次按学分（1 学分 = 每周 1 小时），最后按学期总学时折算
func ExpandBlocks(course *domain.Course, blockMinutes int) int {
	if course.WeeklyBlocks > 0 {
		return int(course.WeeklyBlocks)
	}
	if blockMinutes <= 0 {
		return 1
	}

	var minutes float64
	switch {
	case course.Credits > 0:
		minutes = float64(course.Credits) * 60
	case course.WorkloadHours > 0:
		minutes = float64(course.WorkloadHours) * 60 / semesterWeeks
	default:
		return 1
	}

	return max(1, int(math.Ceil(minutes/float64(blockMinutes))))
}

func roomFits(room *domain.Room, course *domain.Course) bool {
	if !room.IsAvailable {
		return false
	}
	if room.Capacity < course.Enrollment {
		return false
	}
	return course.RoomType == "" || room.Type == course.RoomType
}

func newProblem(input *Input) (*problem, error) {
	if input == nil {
		return nil, inputErrorf("input", 0, "为空")
	}

	slots, err := EnumerateSlots(input.Calendar.Days, input.Calendar.Shifts)
	if err != nil {
		return nil, err
	}

	p := &problem{
		scope:        input.Scope,
		slots:        slots,
		blockMinutes: blockLength(slots),
	}

	switch input.Scope {
	case domain.RunScopeIndividual:
		if len(input.Professors) != 1 {
			return nil, inputErrorf("professors", 0, "个人排班只能包含一位教师，实际为 %d", len(input.Professors))
		}
	case domain.RunScopeCollective:
		if len(input.Professors) == 0 {
			return nil, inputErrorf("professors", 0, "不能为空")
		}
	default:
		return nil, inputErrorf("scope", 0, "未知的排班范围 %q", input.Scope)
	}

	professorIndex := make(map[int64]int)
	for _, professor := range input.Professors {
		if professor == nil {
			return nil, inputErrorf("professor", 0, "为空")
		}
		if _, exists := professorIndex[professor.ID]; exists {
			return nil, inputErrorf("professor", professor.ID, "重复")
		}
		professorIndex[professor.ID] = len(p.professors)
		p.professors = append(p.professors, professor)
	}

	courseIndex := make(map[int64]int)
	for _, course := range input.Courses {
		if course == nil {
			return nil, inputErrorf("course", 0, "为空")
		}
		if _, exists := courseIndex[course.ID]; exists {
			return nil, inputErrorf("course", course.ID, "重复")
		}
		courseIndex[course.ID] = len(p.courses)
		p.courses = append(p.courses, course)
	}
	if len(p.courses) == 0 {
		return nil, inputErrorf("courses", 0, "不能为空")
	}

	for _, room := range input.Rooms {
		if room != nil && room.IsAvailable {
			p.rooms = append(p.rooms, room)
		}
	}
	if len(p.rooms) == 0 {
		return nil, inputErrorf("rooms", 0, "没有可用的教室")
	}

	p.preferences = make([]*domain.ProfessorPreference, len(p.professors))
	for _, pref := range input.Preferences {
		if pref == nil {
			continue
		}
		if i, ok := professorIndex[pref.ProfessorID]; ok {
			p.preferences[i] = pref
		}
	}

	// 每位教师承担其偏好中出现在课程池内的课程
	for i, pref := range p.preferences {
		if pref == nil {
			continue
		}
		assigned := make(map[int]bool)
		for _, cp := range pref.Courses {
			c, ok := courseIndex[cp.CourseID]
			if !ok || assigned[c] {
				continue
			}
			assigned[c] = true

			level := cp.Level
			if level == 0 {
				level = 3
			}
			if level < 1 || level > 5 {
				return nil, inputErrorf("preference", pref.ID, "课程 %d 的偏好等级 %d 超出 1-5", cp.CourseID, cp.Level)
			}
			p.obligations = append(p.obligations, obligation{professor: i, course: c, level: level})
		}
	}
	if len(p.obligations) == 0 {
		return nil, inputErrorf("preferences", 0, "没有任何教师选择了课程池中的课程")
	}

	p.roomChoices = make([][]int, len(p.courses))
	for c, course := range p.courses {
		for r, room := range p.rooms {
			if roomFits(room, course) {
				p.roomChoices[c] = append(p.roomChoices[c], r)
			}
		}
	}

	for o := range p.obligations {
		ob := &p.obligations[o]
		course := p.courses[ob.course]
		if len(p.roomChoices[ob.course]) == 0 {
			return nil, inputErrorf("course", course.ID, "没有满足容量 %d 和类型要求的教室", course.Enrollment)
		}
		n := ExpandBlocks(course, p.blockMinutes)
		for k := 0; k < n; k++ {
			ob.blocks = append(ob.blocks, len(p.blocks))
			p.blocks = append(p.blocks, block{obligation: o, professor: ob.professor, course: ob.course})
		}
	}

	return p, nil
}
