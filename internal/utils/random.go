package utils

import (
	"fmt"
	"math/rand"

	"github.com/mozillazg/go-pinyin"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}
var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "霞", "飞", "玲", "超",
	"华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌", "庆",
	"建", "丹", "彬", "凤", "旭", "宁", "乐", "成", "欣",
}

var departments = []string{"计算机学院", "数学学院", "物理学院", "电子与信息工程学院"}

func GenerateRandomChineseName() string {
	surname := commonSurnames[rand.Intn(len(commonSurnames))]
	nameLength := rand.Intn(2) + 1
	name := ""

	for i := 0; i < nameLength; i++ {
		name += commonNameCharacters[rand.Intn(len(commonNameCharacters))]
	}
	return surname + name
}

var digits = "0123456789"

func GenerateUsernameFromChineseName(chineseName string) string {
	pinyinArray := pinyin.LazyConvert(chineseName, nil)
	username := ""

	for _, py := range pinyinArray {
		length := rand.Intn(len(py)) + 1
		username += py[:length]
	}

	digitsLength := rand.Intn(3) + 1
	for i := 0; i < digitsLength; i++ {
		username += string(digits[rand.Intn(len(digits))])
	}

	return username
}

func GenerateRandomProfessor(emailDomainName string) *domain.Professor {
	fullName := GenerateRandomChineseName()
	username := GenerateUsernameFromChineseName(fullName)

	return &domain.Professor{
		Username:   username,
		FullName:   fullName,
		Email:      username + "@" + emailDomainName,
		Department: departments[rand.Intn(len(departments))],
		Role:       domain.RoleProfessor,
	}
}

var courseNames = []string{
	"数据结构", "操作系统", "计算机网络", "编译原理", "数据库系统", "离散数学",
	"线性代数", "概率论与数理统计", "数字电路", "软件工程", "人工智能导论", "计算机组成原理",
}

func GenerateRandomCourse(index int) *domain.Course {
	credits := int32(rand.Intn(4) + 1)
	course := &domain.Course{
		Code:          fmt.Sprintf("CS%03d", index+1),
		Name:          courseNames[index%len(courseNames)],
		WorkloadHours: credits * 15,
		Credits:       credits,
		Department:    departments[rand.Intn(len(departments))],
		Period:        int32(rand.Intn(8) + 1),
		Enrollment:    int32(rand.Intn(80) + 20),
	}
	// 少数课程需要实验室
	if rand.Intn(5) == 0 {
		course.RoomType = domain.RoomTypeLaboratory
	}
	return course
}

var roomTypes = []domain.RoomType{
	domain.RoomTypeClassroom,
	domain.RoomTypeClassroom,
	domain.RoomTypeLaboratory,
	domain.RoomTypeAuditorium,
	domain.RoomTypeMultimedia,
}

func GenerateRandomRoom(index int) *domain.Room {
	roomType := roomTypes[rand.Intn(len(roomTypes))]
	capacity := int32(rand.Intn(60) + 40)
	resources := []string{"投影仪"}
	switch roomType {
	case domain.RoomTypeAuditorium:
		capacity = int32(rand.Intn(100) + 150)
		resources = append(resources, "音响")
	case domain.RoomTypeLaboratory:
		resources = append(resources, "计算机")
	}

	floor := int32(rand.Intn(5) + 1)
	return &domain.Room{
		Code:      fmt.Sprintf("A%d%02d", floor, index+1),
		Name:      fmt.Sprintf("教学楼 A%d%02d", floor, index+1),
		Capacity:  capacity,
		Type:      roomType,
		Building:  "教学楼 A",
		Floor:     floor,
		Resources: resources,
	}
}

var days = []domain.Day{domain.Monday, domain.Tuesday, domain.Wednesday, domain.Thursday, domain.Friday, domain.Saturday}

// GenerateRandomPreference 从 courses 中随机选出若干门课程，并随机生成不可用时段和约束
func GenerateRandomPreference(professorID int64, courses []*domain.Course) *domain.ProfessorPreference {
	pref := &domain.ProfessorPreference{
		ProfessorID:   professorID,
		Courses:       make([]domain.CoursePreference, 0),
		Availability:  make([]domain.AvailabilityWindow, 0),
		Restrictions:  make([]domain.Restriction, 0),
		MaxDailyHours: int32(rand.Intn(3) + 4),
	}

	for _, course := range GenerateRandomSubset(courses, 3) {
		pref.Courses = append(pref.Courses, domain.CoursePreference{
			CourseID: course.ID,
			Level:    int32(rand.Intn(5) + 1),
		})
	}

	for _, day := range GenerateRandomSubset(days, 2) {
		pref.Availability = append(pref.Availability, domain.AvailabilityWindow{
			Day:       day,
			Shift:     domain.ShiftEvening,
			Available: false,
		})
	}

	if rand.Intn(2) == 0 {
		pref.Restrictions = append(pref.Restrictions, domain.Restriction{
			Type:        domain.RestrictionNoConsecutive,
			Description: "不连续上课",
			Priority:    int32(rand.Intn(5) + 1),
		})
	}
	if rand.Intn(2) == 0 {
		pref.Restrictions = append(pref.Restrictions, domain.Restriction{
			Type:        domain.RestrictionPreferredShift,
			Description: "希望上午上课",
			Value:       []byte(`"morning"`),
			Priority:    int32(rand.Intn(3) + 1),
		})
	}

	return pref
}

// GenerateRandomSubset 用 Fisher-Yates 洗牌算法随机选出至多 max 个不重复的元素
func GenerateRandomSubset[T any](arr []T, max int) []T {
	shuffled := make([]T, len(arr))
	copy(shuffled, arr)

	for i := len(shuffled) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	if len(shuffled) == 0 || max <= 0 {
		return shuffled[:0]
	}
	n := rand.Intn(min(max, len(shuffled))) + 1
	return shuffled[:n]
}
